package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go-ao3/db"
	"go-ao3/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(conn))
	return conn
}

// fakeSource is an in-memory RemoteSource with call counters.
type fakeSource struct {
	mu            sync.Mutex
	works         map[string]models.Work
	chapters      map[string][]models.Chapter
	searchResults []models.Work
	errByWork     map[string]error
	err           error

	searchCalls     int
	getWorkCalls    int
	getChapterCalls int
	getAllCalls     int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		works:     make(map[string]models.Work),
		chapters:  make(map[string][]models.Chapter),
		errByWork: make(map[string]error),
	}
}

func (f *fakeSource) SearchWorks(_ context.Context, query string, page int) ([]models.Work, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.Work(nil), f.searchResults...), nil
}

func (f *fakeSource) GetWork(_ context.Context, workID string) (*models.Work, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getWorkCalls++
	if f.err != nil {
		return nil, f.err
	}
	if err := f.errByWork[workID]; err != nil {
		return nil, err
	}
	work, ok := f.works[workID]
	if !ok {
		return nil, fmt.Errorf("work %s not found", workID)
	}
	copied := work
	return &copied, nil
}

func (f *fakeSource) GetChapter(_ context.Context, workID string, number int) (*models.Chapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getChapterCalls++
	if f.err != nil {
		return nil, f.err
	}
	for _, chapter := range f.chapters[workID] {
		if chapter.Number == number {
			copied := chapter
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("chapter %d of work %s not found", number, workID)
}

func (f *fakeSource) GetAllChapters(_ context.Context, workID string) ([]models.Chapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getAllCalls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.Chapter(nil), f.chapters[workID]...), nil
}

// await drains a resource stream, requiring the Loading marker first,
// and returns the terminal value.
func await[T any](t *testing.T, ch <-chan models.Resource[T]) models.Resource[T] {
	t.Helper()
	first, ok := <-ch
	require.True(t, ok, "stream closed without emitting")
	require.Equal(t, models.ResourceLoading, first.Status)

	final, ok := <-ch
	require.True(t, ok, "stream closed after Loading")
	require.NotEqual(t, models.ResourceLoading, final.Status)

	_, open := <-ch
	require.False(t, open, "stream not closed after terminal value")
	return final
}

func sampleWork(id string) models.Work {
	authorID := "alice"
	return models.Work{
		ID:              id,
		Title:           "Sample Work " + id,
		Author:          "alice",
		AuthorID:        &authorID,
		Summary:         "A summary",
		Rating:          "Teen And Up Audiences",
		Warnings:        "No Archive Warnings Apply",
		Categories:      "M/M",
		Fandoms:         "Fandom A, Fandom B",
		Relationships:   "A/B",
		Characters:      "A, B",
		AdditionalTags:  "Fluff",
		Language:        "English",
		PublishedDate:   1_600_000_000_000,
		UpdatedDate:     1_700_000_000_000,
		Words:           12345,
		CurrentChapters: 3,
		TotalChapters:   "5",
		Kudos:           100,
		BookmarksCount:  10,
		Hits:            1000,
	}
}

func sampleChapter(workID string, number int) models.Chapter {
	title := fmt.Sprintf("Chapter %d", number)
	return models.Chapter{
		ID:        models.ChapterKey(workID, number),
		WorkID:    workID,
		Number:    number,
		Title:     &title,
		Content:   "<p>some chapter text here</p>",
		WordCount: 4,
	}
}
