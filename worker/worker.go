package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-ao3/models"
	"go-ao3/repository"
	"go-ao3/scraper"
)

const (
	downloadQueueKey = "download_queue"
	downloadLockTTL  = 24 * time.Hour

	maxConcurrentDownloads = 3
	maxFetchAttempts       = 3
	maxUpdateCheckAttempts = 3

	updateCheckInterval = 6 * time.Hour
)

func downloadLockKey(workID string) string {
	return fmt.Sprintf("download_lock:%s", workID)
}

var jobSeq atomic.Int64

func newJobToken() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), jobSeq.Add(1))
}

// DownloadJob is the queue payload for one work download. Token matches
// the job to its download lock; a queue entry whose token no longer
// matches the lock value was cancelled or superseded and is skipped.
type DownloadJob struct {
	WorkID        string `json:"work_id"`
	Title         string `json:"title"`
	TotalChapters int    `json:"total_chapters"`
	Retries       int    `json:"retries"`
	Token         string `json:"token"`
}

// EventType names the notifications the engine emits.
type EventType string

const (
	EventDownloadFinished EventType = "DOWNLOAD_FINISHED"
	EventUpdatesFound     EventType = "UPDATES_FOUND"
)

type Event struct {
	Type   EventType             `json:"type"`
	WorkID string                `json:"work_id,omitempty"`
	Status models.DownloadStatus `json:"status,omitempty"`
	Count  int                   `json:"count,omitempty"`
}

// Exporter receives a completed download for archival.
type Exporter interface {
	ExportWork(work *models.Work, chapters []models.Chapter) error
}

// Engine runs the download queue and the periodic update checker.
type Engine struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Works     *repository.WorkRepository
	Downloads *repository.DownloadRepository
	Following *repository.FollowingRepository
	Exporter  Exporter

	hub       *progressHub
	semaphore *semaphore.Weighted
	events    chan Event
	checkNow  chan struct{}

	mu      sync.Mutex
	running map[string]context.CancelFunc

	sleep func(context.Context, time.Duration) error
}

func NewEngine(db *gorm.DB, rdb *redis.Client, works *repository.WorkRepository, downloads *repository.DownloadRepository, following *repository.FollowingRepository) *Engine {
	return &Engine{
		DB:        db,
		Redis:     rdb,
		Works:     works,
		Downloads: downloads,
		Following: following,
		hub:       newProgressHub(),
		semaphore: semaphore.NewWeighted(maxConcurrentDownloads),
		events:    make(chan Event, 64),
		checkNow:  make(chan struct{}, 1),
		running:   make(map[string]context.CancelFunc),
		sleep:     sleepContext,
	}
}

// Events exposes the engine's notification stream. The channel is
// buffered; when nobody drains it, events are dropped rather than
// stalling a download.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Start launches the queue consumer and the update scheduler, re-queueing
// downloads that were interrupted by the previous shutdown first.
func (e *Engine) Start(ctx context.Context) {
	if err := e.RecoverStalled(ctx); err != nil {
		log.Printf("Error recovering stalled downloads: %v", err)
	}
	go e.processQueue(ctx)
	go e.runUpdateScheduler(ctx)
}

// EnqueueDownload queues a work for download. Starting a work whose
// download is already queued or running is a no-op; the lock holder
// keeps going. Returns whether a new job was queued.
func (e *Engine) EnqueueDownload(ctx context.Context, workID, title string, totalChapters int) (bool, error) {
	token := newJobToken()
	job, err := json.Marshal(DownloadJob{WorkID: workID, Title: title, TotalChapters: totalChapters, Token: token})
	if err != nil {
		return false, fmt.Errorf("marshalling download job: %w", err)
	}

	locked, err := e.Redis.SetNX(ctx, downloadLockKey(workID), token, downloadLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring download lock for %s: %w", workID, err)
	}
	if !locked {
		log.Printf("Download for work %s already active, skipping", workID)
		return false, nil
	}

	download := models.Download{
		WorkID:        workID,
		Status:        models.DownloadPending,
		TotalChapters: totalChapters,
		StartedAt:     models.NowMillis(),
	}
	if err := e.DB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&download).Error; err != nil {
		e.Redis.Del(ctx, downloadLockKey(workID))
		return false, fmt.Errorf("recording download for %s: %w", workID, err)
	}

	if err := e.Redis.RPush(ctx, downloadQueueKey, string(job)).Err(); err != nil {
		e.Redis.Del(ctx, downloadLockKey(workID))
		return false, fmt.Errorf("enqueueing download for %s: %w", workID, err)
	}

	e.hub.Publish(DownloadProgress{WorkID: workID, State: models.DownloadPending})
	return true, nil
}

// CancelDownload stops a download. A running job is cancelled at the next
// chapter boundary and keeps what it already stored; a queued job is
// marked cancelled before it starts.
func (e *Engine) CancelDownload(ctx context.Context, workID string) error {
	e.mu.Lock()
	cancel, active := e.running[workID]
	e.mu.Unlock()
	if active {
		cancel()
		return nil
	}

	err := e.DB.WithContext(ctx).Model(&models.Download{}).
		Where("work_id = ? AND status = ?", workID, models.DownloadPending).
		Update("status", models.DownloadCancelled).Error
	if err != nil {
		return err
	}
	e.Redis.Del(ctx, downloadLockKey(workID))
	e.hub.Publish(DownloadProgress{WorkID: workID, State: models.DownloadCancelled})
	return nil
}

// SubscribeProgress streams one work's download progress.
func (e *Engine) SubscribeProgress(workID string) (<-chan DownloadProgress, func()) {
	return e.hub.Subscribe(workID)
}

// TriggerUpdateCheck asks the scheduler to run a check now instead of
// waiting for the next tick. Coalesces when a trigger is already pending.
func (e *Engine) TriggerUpdateCheck() {
	select {
	case e.checkNow <- struct{}{}:
	default:
	}
}

// RecoverStalled re-queues downloads the previous process left PENDING or
// IN_PROGRESS. Chapters already cached make the resume cheap.
func (e *Engine) RecoverStalled(ctx context.Context) error {
	var stalled []models.Download
	err := e.DB.WithContext(ctx).
		Where("status IN ?", []models.DownloadStatus{models.DownloadPending, models.DownloadInProgress}).
		Find(&stalled).Error
	if err != nil {
		return err
	}

	for _, download := range stalled {
		log.Printf("Recovering stalled download for work %s (was %s)", download.WorkID, download.Status)
		e.Redis.Del(ctx, downloadLockKey(download.WorkID))
		work, err := e.Works.WorkOnce(ctx, download.WorkID)
		title := ""
		if err == nil {
			title = work.Title
		}
		if _, err := e.EnqueueDownload(ctx, download.WorkID, title, download.TotalChapters); err != nil {
			log.Printf("Error re-queueing download for work %s: %v", download.WorkID, err)
		}
	}
	return nil
}

func (e *Engine) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Println("Stopping download queue processing")
			return
		default:
			result, err := e.Redis.BLPop(ctx, 5*time.Second, downloadQueueKey).Result()
			if err == redis.Nil {
				continue
			} else if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Error popping from download queue: %v", err)
				time.Sleep(time.Second)
				continue
			}

			var job DownloadJob
			if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
				log.Printf("Error unmarshalling download job: %v", err)
				continue
			}

			if err := e.semaphore.Acquire(ctx, 1); err != nil {
				return
			}
			go func(job DownloadJob) {
				defer e.semaphore.Release(1)
				e.executeDownload(ctx, job)
			}(job)
		}
	}
}

// executeDownload runs one download job to a terminal state. Ownership
// is re-checked at pop time: cancellation or recovery may have removed
// or re-issued the lock while the entry sat in the queue.
func (e *Engine) executeDownload(ctx context.Context, job DownloadJob) {
	workID := job.WorkID

	current, err := e.Redis.Get(ctx, downloadLockKey(workID)).Result()
	if err != nil || current != job.Token {
		log.Printf("Skipping stale download job for work %s", workID)
		return
	}
	defer e.Redis.Del(context.Background(), downloadLockKey(workID))

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.running[workID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, workID)
		e.mu.Unlock()
	}()

	e.setStatus(workID, map[string]interface{}{
		"status":              models.DownloadInProgress,
		"downloaded_chapters": 0,
	})
	e.hub.Publish(DownloadProgress{WorkID: workID, State: models.DownloadInProgress, ChapterCount: 0})

	log.Printf("Downloading work %s (%s)", workID, job.Title)

	chapters, err := e.fetchAllChapters(jobCtx, workID)
	if err != nil {
		if jobCtx.Err() != nil {
			e.finishCancelled(workID, 0)
			return
		}
		e.finishFailed(workID, err)
		return
	}

	total := len(chapters)
	for i := range chapters {
		if jobCtx.Err() != nil {
			e.finishCancelled(workID, i)
			return
		}
		if err := e.Works.SaveChapter(context.Background(), &chapters[i]); err != nil {
			e.finishFailed(workID, fmt.Errorf("storing chapter %d: %w", chapters[i].Number, err))
			return
		}
		done := i + 1
		e.setStatus(workID, map[string]interface{}{
			"downloaded_chapters": done,
			"total_chapters":      total,
		})
		e.hub.Publish(DownloadProgress{
			WorkID:       workID,
			State:        models.DownloadInProgress,
			Progress:     float64(done) / float64(total),
			ChapterCount: done,
		})
	}

	now := models.NowMillis()
	e.setStatus(workID, map[string]interface{}{
		"status":              models.DownloadCompleted,
		"downloaded_chapters": total,
		"total_chapters":      total,
		"completed_at":        now,
		"error_message":       nil,
	})
	e.hub.Publish(DownloadProgress{WorkID: workID, State: models.DownloadCompleted, Progress: 1, ChapterCount: total})
	e.emit(Event{Type: EventDownloadFinished, WorkID: workID, Status: models.DownloadCompleted})
	log.Printf("Download for work %s completed with %d chapters", workID, total)

	e.export(workID, chapters)
}

// fetchAllChapters fetches the full chapter list, retrying transport
// failures with backoff. Parse failures are never retried.
func (e *Engine) fetchAllChapters(ctx context.Context, workID string) ([]models.Chapter, error) {
	backoff := 2 * time.Second
	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		chapters, err := e.Works.FetchAllChapters(ctx, workID)
		if err == nil {
			return chapters, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
		if !scraper.Retryable(err) {
			return nil, err
		}
		if attempt < maxFetchAttempts {
			log.Printf("Fetch attempt %d for work %s failed: %v", attempt, workID, err)
			if err := e.sleep(ctx, backoff); err != nil {
				return nil, lastErr
			}
			backoff *= 2
		}
	}
	return nil, lastErr
}

func (e *Engine) finishCancelled(workID string, kept int) {
	e.setStatus(workID, map[string]interface{}{
		"status":              models.DownloadCancelled,
		"downloaded_chapters": kept,
	})
	e.hub.Publish(DownloadProgress{WorkID: workID, State: models.DownloadCancelled, ChapterCount: kept})
	e.emit(Event{Type: EventDownloadFinished, WorkID: workID, Status: models.DownloadCancelled})
	log.Printf("Download for work %s cancelled, kept %d chapters", workID, kept)
}

func (e *Engine) finishFailed(workID string, cause error) {
	e.setStatus(workID, map[string]interface{}{
		"status":        models.DownloadFailed,
		"error_message": cause.Error(),
	})
	e.hub.Publish(DownloadProgress{WorkID: workID, State: models.DownloadFailed, Error: cause.Error()})
	e.emit(Event{Type: EventDownloadFinished, WorkID: workID, Status: models.DownloadFailed})
	log.Printf("Download for work %s failed: %v", workID, cause)
}

func (e *Engine) setStatus(workID string, fields map[string]interface{}) {
	err := e.DB.Model(&models.Download{}).Where("work_id = ?", workID).Updates(fields).Error
	if err != nil {
		log.Printf("Error updating download row for work %s: %v", workID, err)
	}
}

func (e *Engine) emit(event Event) {
	select {
	case e.events <- event:
	default:
		log.Printf("Event channel full, dropping %s for work %s", event.Type, event.WorkID)
	}
}

// export ships the finished work to the configured exporter. Export
// failure never fails the download.
func (e *Engine) export(workID string, chapters []models.Chapter) {
	if e.Exporter == nil {
		return
	}
	work, err := e.Works.WorkOnce(context.Background(), workID)
	if err != nil {
		log.Printf("Error loading work %s for export: %v", workID, err)
		return
	}
	if err := e.Exporter.ExportWork(work, chapters); err != nil {
		log.Printf("Error exporting work %s: %v", workID, err)
	}
}

func (e *Engine) runUpdateScheduler(ctx context.Context) {
	ticker := time.NewTicker(updateCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("Stopping update check scheduler")
			return
		case <-ticker.C:
			e.runUpdateCheck(ctx)
		case <-e.checkNow:
			e.runUpdateCheck(ctx)
		}
	}
}

// runUpdateCheck runs one update-check batch. The batch only errors when
// the followed list cannot be read, before touching any item; that case
// is retried with backoff. Per-item failures are handled inside the
// repository and never reach here.
func (e *Engine) runUpdateCheck(ctx context.Context) {
	backoff := 2 * time.Second
	for attempt := 1; attempt <= maxUpdateCheckAttempts; attempt++ {
		count, err := e.Following.CheckForUpdates(ctx)
		if err == nil {
			log.Printf("Update check finished, %d update(s) found", count)
			if count > 0 {
				e.emit(Event{Type: EventUpdatesFound, Count: count})
			}
			return
		}
		log.Printf("Update check attempt %d failed: %v", attempt, err)
		if attempt < maxUpdateCheckAttempts {
			if err := e.sleep(ctx, backoff); err != nil {
				return
			}
			backoff *= 2
		}
	}
	log.Printf("Update check gave up after %d attempts", maxUpdateCheckAttempts)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
