package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Work is a single archive submission. Tag-group columns hold ", "-joined
// label lists; use SplitLabels to read them back.
type Work struct {
	ID              string `gorm:"primaryKey" json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	AuthorID        *string `json:"author_id"`
	Summary         string `json:"summary"`
	Rating          string `json:"rating"`
	Warnings        string `json:"warnings"`
	Categories      string `json:"categories"`
	Fandoms         string `json:"fandoms"`
	Relationships   string `json:"relationships"`
	Characters      string `json:"characters"`
	AdditionalTags  string `json:"additional_tags"`
	Language        string `json:"language"`
	PublishedDate   int64  `json:"published_date"`
	UpdatedDate     int64  `json:"updated_date"`
	Words           int    `json:"words"`
	CurrentChapters int    `json:"current_chapters"`
	TotalChapters   string `json:"total_chapters"` // "?" when the total is unknown
	Kudos           int    `json:"kudos"`
	BookmarksCount  int    `json:"bookmarks_count"`
	Hits            int    `json:"hits"`
	IsSeries        bool   `json:"is_series"`
	SeriesName      *string `json:"series_name"`
	SeriesPart      *int    `json:"series_part"`
	CachedAt        int64  `json:"cached_at"`
}

// IsComplete reports whether the work has all of its planned chapters.
// A "?" total means the work is ongoing with no announced end.
func (w *Work) IsComplete() bool {
	return w.TotalChapters != "?" && strconv.Itoa(w.CurrentChapters) == w.TotalChapters
}

// WorkDetail is a Work decorated with the caller-facing status flags.
// The flags live in their own tables and are looked up at read time.
type WorkDetail struct {
	Work
	IsComplete   bool `json:"is_complete"`
	IsBookmarked bool `json:"is_bookmarked"`
	IsDownloaded bool `json:"is_downloaded"`
	IsFollowing  bool `json:"is_following"`
}

type Chapter struct {
	ID            string  `gorm:"primaryKey" json:"id"` // "<workID>_<number>"
	WorkID        string  `gorm:"index:idx_work_number,unique" json:"work_id"`
	Number        int     `gorm:"index:idx_work_number,unique" json:"number"`
	Title         *string `json:"title"`
	Summary       *string `json:"summary"`
	Notes         *string `json:"notes"`
	EndNotes      *string `json:"end_notes"`
	Content       string  `json:"content"`
	WordCount     int     `json:"word_count"`
	PublishedDate *int64  `json:"published_date"`
	CachedAt      int64   `json:"cached_at"`
}

// ChapterKey builds the derived chapter row key. Chapter numbers are
// 1-indexed.
func ChapterKey(workID string, number int) string {
	return fmt.Sprintf("%s_%d", workID, number)
}

// Bookmark tracks reading position. At most one per work.
type Bookmark struct {
	WorkID         string  `gorm:"primaryKey" json:"work_id"`
	CurrentChapter int     `json:"current_chapter"`
	ScrollPosition int     `json:"scroll_position"`
	Progress       float64 `json:"progress"` // 0.0 to 1.0
	BookmarkedAt   int64   `json:"bookmarked_at"`
	LastReadAt     int64   `json:"last_read_at"`
	Notes          *string `json:"notes"`
}

type DownloadStatus string

const (
	DownloadPending    DownloadStatus = "PENDING"
	DownloadInProgress DownloadStatus = "IN_PROGRESS"
	DownloadCompleted  DownloadStatus = "COMPLETED"
	DownloadFailed     DownloadStatus = "FAILED"
	DownloadCancelled  DownloadStatus = "CANCELLED"
)

// Terminal reports whether the status is an end state. Terminal rows are
// only re-entered by an explicit new start.
func (s DownloadStatus) Terminal() bool {
	return s == DownloadCompleted || s == DownloadFailed || s == DownloadCancelled
}

// Download is the persisted job row, one per work. Restarting the process
// mid-download leaves the row behind with its progress intact.
type Download struct {
	WorkID             string         `gorm:"primaryKey" json:"work_id"`
	Status             DownloadStatus `json:"status"`
	TotalChapters      int            `json:"total_chapters"`
	DownloadedChapters int            `json:"downloaded_chapters"`
	StartedAt          int64          `json:"started_at"`
	CompletedAt        *int64         `json:"completed_at"`
	ErrorMessage       *string        `json:"error_message"`
}

type FollowingType string

const (
	FollowWork   FollowingType = "WORK"
	FollowAuthor FollowingType = "AUTHOR"
)

// Following is a subscription to a work or an author. ID is the workID or
// authorID depending on Type.
type Following struct {
	ID                string        `gorm:"primaryKey" json:"id"`
	Type              FollowingType `json:"type"`
	Name              string        `json:"name"`
	FollowedAt        int64         `json:"followed_at"`
	LastChecked       *int64        `json:"last_checked"`
	LastKnownChapters int           `json:"last_known_chapters"`
	HasUpdate         bool          `json:"has_update"`
}

type TagType string

const (
	TagFandom       TagType = "FANDOM"
	TagRelationship TagType = "RELATIONSHIP"
	TagCharacter    TagType = "CHARACTER"
	TagFreeform     TagType = "FREEFORM"
	TagWarning      TagType = "WARNING"
	TagCategory     TagType = "CATEGORY"
	TagRating       TagType = "RATING"
)

type Tag struct {
	Name  string  `gorm:"primaryKey" json:"name"`
	Type  TagType `json:"type"`
	Count int     `json:"count"`
}

// WorkTag joins works to tags, cascade-deleted with either side.
type WorkTag struct {
	WorkID  string `gorm:"primaryKey" json:"work_id"`
	TagName string `gorm:"primaryKey" json:"tag_name"`
}

// Archive content ratings, normalized from the free-text label.
type Rating string

const (
	RatingNotRated Rating = "Not Rated"
	RatingGeneral  Rating = "General Audiences"
	RatingTeen     Rating = "Teen And Up Audiences"
	RatingMature   Rating = "Mature"
	RatingExplicit Rating = "Explicit"
)

func ParseRating(value string) Rating {
	lower := strings.ToLower(value)
	switch {
	case strings.Contains(lower, "general"):
		return RatingGeneral
	case strings.Contains(lower, "teen"):
		return RatingTeen
	case strings.Contains(lower, "mature"):
		return RatingMature
	case strings.Contains(lower, "explicit"):
		return RatingExplicit
	default:
		return RatingNotRated
	}
}

// SplitLabels turns a ", "-joined tag-group column back into its labels.
func SplitLabels(joined string) []string {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ", ")
	labels := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			labels = append(labels, p)
		}
	}
	return labels
}

func JoinLabels(labels []string) string {
	return strings.Join(labels, ", ")
}

func NowMillis() int64 {
	return time.Now().UnixMilli()
}
