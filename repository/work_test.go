package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"go-ao3/models"
)

func TestGetWorkFetchesOnceThenHitsCache(t *testing.T) {
	conn := openTestDB(t)
	source := newFakeSource()
	source.works["999"] = sampleWork("999")
	repo := NewWorkRepository(conn, source)
	ctx := context.Background()

	first := await(t, repo.GetWork(ctx, "999", false))
	require.Equal(t, models.ResourceSuccess, first.Status)
	assert.Equal(t, 1, source.getWorkCalls)

	second := await(t, repo.GetWork(ctx, "999", false))
	require.Equal(t, models.ResourceSuccess, second.Status)
	assert.Equal(t, 1, source.getWorkCalls, "cache hit must not fetch")

	// Business fields round-trip through the store unchanged.
	want := source.works["999"]
	got := second.Data.Work
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.Rating, got.Rating)
	assert.Equal(t, want.Fandoms, got.Fandoms)
	assert.Equal(t, want.AdditionalTags, got.AdditionalTags)
	assert.Equal(t, want.Words, got.Words)
	assert.Equal(t, want.Kudos, got.Kudos)
	assert.Equal(t, want.PublishedDate, got.PublishedDate)
	assert.Equal(t, want.UpdatedDate, got.UpdatedDate)
	assert.Equal(t, want.CurrentChapters, got.CurrentChapters)
	assert.Equal(t, want.TotalChapters, got.TotalChapters)
}

func TestGetWorkForceRefreshFetches(t *testing.T) {
	conn := openTestDB(t)
	source := newFakeSource()
	source.works["999"] = sampleWork("999")
	repo := NewWorkRepository(conn, source)
	ctx := context.Background()

	await(t, repo.GetWork(ctx, "999", false))

	updated := sampleWork("999")
	updated.CurrentChapters = 4
	source.works["999"] = updated

	refreshed := await(t, repo.GetWork(ctx, "999", true))
	require.Equal(t, models.ResourceSuccess, refreshed.Status)
	assert.Equal(t, 2, source.getWorkCalls)
	assert.Equal(t, 4, refreshed.Data.CurrentChapters)
}

func TestGetWorkRemoteFailureLeavesStoreUntouched(t *testing.T) {
	conn := openTestDB(t)
	source := newFakeSource()
	source.errByWork["999"] = errors.New("HTTP 503: down")
	repo := NewWorkRepository(conn, source)

	result := await(t, repo.GetWork(context.Background(), "999", false))
	require.Equal(t, models.ResourceError, result.Status)
	assert.Contains(t, result.Message, "503")

	var n int64
	conn.Model(&models.Work{}).Count(&n)
	assert.Zero(t, n)
}

func TestGetWorkDecoration(t *testing.T) {
	conn := openTestDB(t)
	source := newFakeSource()
	source.works["999"] = sampleWork("999")
	repo := NewWorkRepository(conn, source)
	ctx := context.Background()

	plain := await(t, repo.GetWork(ctx, "999", false))
	require.Equal(t, models.ResourceSuccess, plain.Status)
	assert.False(t, plain.Data.IsBookmarked)
	assert.False(t, plain.Data.IsDownloaded)
	assert.False(t, plain.Data.IsFollowing)

	require.NoError(t, conn.Create(&models.Bookmark{WorkID: "999", CurrentChapter: 1}).Error)
	require.NoError(t, conn.Create(&models.Download{WorkID: "999", Status: models.DownloadCompleted}).Error)
	require.NoError(t, conn.Create(&models.Following{ID: "999", Type: models.FollowWork, Name: "x"}).Error)

	decorated := await(t, repo.GetWork(ctx, "999", false))
	assert.True(t, decorated.Data.IsBookmarked)
	assert.True(t, decorated.Data.IsDownloaded)
	assert.True(t, decorated.Data.IsFollowing)
	assert.Equal(t, 1, source.getWorkCalls, "flags come from local lookups")
}

func TestGetWorkDecorationIgnoresUnfinishedDownload(t *testing.T) {
	conn := openTestDB(t)
	source := newFakeSource()
	source.works["999"] = sampleWork("999")
	repo := NewWorkRepository(conn, source)
	ctx := context.Background()

	require.NoError(t, conn.Create(&models.Download{WorkID: "999", Status: models.DownloadInProgress}).Error)

	result := await(t, repo.GetWork(ctx, "999", false))
	assert.False(t, result.Data.IsDownloaded)
}

func TestGetWorkDecorationSurvivesFlagLookupFailure(t *testing.T) {
	conn := openTestDB(t)
	source := newFakeSource()
	source.works["999"] = sampleWork("999")
	repo := NewWorkRepository(conn, source)

	require.NoError(t, conn.Migrator().DropTable(&models.Bookmark{}))

	result := await(t, repo.GetWork(context.Background(), "999", false))
	require.Equal(t, models.ResourceSuccess, result.Status, "a flag lookup failure must not fail the read")
	assert.False(t, result.Data.IsBookmarked)
}

func TestGetChapterCacheFirst(t *testing.T) {
	conn := openTestDB(t)
	source := newFakeSource()
	source.chapters["999"] = []models.Chapter{sampleChapter("999", 1), sampleChapter("999", 2)}
	repo := NewWorkRepository(conn, source)
	ctx := context.Background()

	first := await(t, repo.GetChapter(ctx, "999", 2, false))
	require.Equal(t, models.ResourceSuccess, first.Status)
	assert.Equal(t, "999_2", first.Data.ID)
	assert.Equal(t, 1, source.getChapterCalls)

	second := await(t, repo.GetChapter(ctx, "999", 2, false))
	require.Equal(t, models.ResourceSuccess, second.Status)
	assert.Equal(t, 1, source.getChapterCalls)
}

func TestSaveWorkUpsertsInPlace(t *testing.T) {
	conn := openTestDB(t)
	repo := NewWorkRepository(conn, newFakeSource())
	ctx := context.Background()

	work := sampleWork("999")
	require.NoError(t, repo.SaveWork(ctx, &work))

	work.CurrentChapters = 4
	work.Kudos = 200
	require.NoError(t, repo.SaveWork(ctx, &work))

	var n int64
	conn.Model(&models.Work{}).Count(&n)
	assert.EqualValues(t, 1, n, "re-fetching the same id must not duplicate")

	stored, err := repo.WorkOnce(ctx, "999")
	require.NoError(t, err)
	assert.Equal(t, 4, stored.CurrentChapters)
	assert.Equal(t, 200, stored.Kudos)
	assert.NotZero(t, stored.CachedAt)
}

func TestSaveWorkMaintainsTags(t *testing.T) {
	conn := openTestDB(t)
	repo := NewWorkRepository(conn, newFakeSource())
	ctx := context.Background()

	work := sampleWork("999")
	require.NoError(t, repo.SaveWork(ctx, &work))

	var tag models.Tag
	require.NoError(t, conn.First(&tag, "name = ?", "Fandom A").Error)
	assert.Equal(t, models.TagFandom, tag.Type)
	assert.Equal(t, 1, tag.Count)

	other := sampleWork("1000")
	require.NoError(t, repo.SaveWork(ctx, &other))

	require.NoError(t, conn.First(&tag, "name = ?", "Fandom A").Error)
	assert.Equal(t, 2, tag.Count)

	// Dropping a tag from the work drops the join and the count.
	work.Fandoms = "Fandom B"
	require.NoError(t, repo.SaveWork(ctx, &work))
	require.NoError(t, conn.First(&tag, "name = ?", "Fandom A").Error)
	assert.Equal(t, 1, tag.Count)
}

func TestFetchAllChaptersDoesNotPersist(t *testing.T) {
	conn := openTestDB(t)
	source := newFakeSource()
	source.chapters["42"] = []models.Chapter{
		sampleChapter("42", 1),
		sampleChapter("42", 2),
		sampleChapter("42", 3),
	}
	repo := NewWorkRepository(conn, source)

	chapters, err := repo.FetchAllChapters(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, chapters, 3)
	assert.Equal(t, 1, source.getAllCalls, "one remote call for the whole work")

	stored, err := repo.ChaptersForWork(context.Background(), "42")
	require.NoError(t, err)
	assert.Empty(t, stored, "persisting is the caller's per-chapter decision")
}

func TestDeleteWorkCascades(t *testing.T) {
	conn := openTestDB(t)
	repo := NewWorkRepository(conn, newFakeSource())
	ctx := context.Background()

	work := sampleWork("999")
	require.NoError(t, repo.SaveWork(ctx, &work))
	chapter := sampleChapter("999", 1)
	require.NoError(t, repo.SaveChapter(ctx, &chapter))
	require.NoError(t, conn.Create(&models.Bookmark{WorkID: "999"}).Error)

	require.NoError(t, repo.DeleteWork(ctx, "999"))

	var n int64
	conn.Model(&models.Work{}).Count(&n)
	assert.Zero(t, n)
	conn.Model(&models.Chapter{}).Count(&n)
	assert.Zero(t, n)
	conn.Model(&models.Bookmark{}).Count(&n)
	assert.Zero(t, n)
	conn.Model(&models.WorkTag{}).Where("work_id = ?", "999").Count(&n)
	assert.Zero(t, n)
}

func TestClearOldCache(t *testing.T) {
	conn := openTestDB(t)
	repo := NewWorkRepository(conn, newFakeSource())
	ctx := context.Background()

	old := sampleWork("1")
	old.CachedAt = 1000
	require.NoError(t, conn.Create(&old).Error)
	fresh := sampleWork("2")
	fresh.CachedAt = 5000
	require.NoError(t, conn.Create(&fresh).Error)

	oldChapter := sampleChapter("1", 1)
	oldChapter.CachedAt = 1000
	require.NoError(t, conn.Create(&oldChapter).Error)

	require.NoError(t, repo.ClearOldCache(ctx, 2000))

	_, err := repo.WorkOnce(ctx, "1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repo.WorkOnce(ctx, "2")
	assert.NoError(t, err)

	var n int64
	conn.Model(&models.Chapter{}).Count(&n)
	assert.Zero(t, n)
}

func TestIsCompleteDerivation(t *testing.T) {
	work := sampleWork("999")
	work.CurrentChapters = 3

	work.TotalChapters = "5"
	assert.False(t, work.IsComplete())

	work.TotalChapters = "3"
	assert.True(t, work.IsComplete())

	work.TotalChapters = "?"
	assert.False(t, work.IsComplete())
}
