package worker

import (
	"sync"

	"go-ao3/models"
)

// DownloadProgress is one observation of a download's lifecycle. State
// moves Pending -> InProgress* -> one terminal value, after which the
// stream closes.
type DownloadProgress struct {
	WorkID       string                `json:"work_id"`
	State        models.DownloadStatus `json:"state"`
	Progress     float64               `json:"progress"`
	ChapterCount int                   `json:"chapter_count"`
	Error        string                `json:"error,omitempty"`
}

// progressHub fans download progress out to per-work subscribers.
// Publishing never blocks; a slow subscriber drops observations. The
// stream close is the reliable end-of-download signal.
type progressHub struct {
	mu   sync.Mutex
	subs map[string][]chan DownloadProgress
}

func newProgressHub() *progressHub {
	return &progressHub{subs: make(map[string][]chan DownloadProgress)}
}

// Subscribe registers for one work's progress. The returned cancel func
// detaches and closes the channel; it is safe to call after the stream
// already closed on a terminal publish.
func (h *progressHub) Subscribe(workID string) (<-chan DownloadProgress, func()) {
	ch := make(chan DownloadProgress, 16)
	h.mu.Lock()
	h.subs[workID] = append(h.subs[workID], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		chans := h.subs[workID]
		for i, c := range chans {
			if c == ch {
				h.subs[workID] = append(chans[:i], chans[i+1:]...)
				close(c)
				return
			}
		}
	}
	return ch, cancel
}

func (h *progressHub) Publish(progress DownloadProgress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[progress.WorkID] {
		select {
		case ch <- progress:
		default:
		}
	}
	if progress.State.Terminal() {
		for _, ch := range h.subs[progress.WorkID] {
			close(ch)
		}
		delete(h.subs, progress.WorkID)
	}
}
