package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"go-ao3/models"
)

func TestIsDownloadedOnlyWhenCompleted(t *testing.T) {
	conn := openTestDB(t)
	repo := NewDownloadRepository(conn)
	ctx := context.Background()

	for _, status := range []models.DownloadStatus{
		models.DownloadPending,
		models.DownloadInProgress,
		models.DownloadFailed,
		models.DownloadCancelled,
	} {
		require.NoError(t, conn.Save(&models.Download{WorkID: "999", Status: status}).Error)
		downloaded, err := repo.IsDownloaded(ctx, "999")
		require.NoError(t, err)
		assert.False(t, downloaded, "status %s", status)
	}

	require.NoError(t, conn.Save(&models.Download{WorkID: "999", Status: models.DownloadCompleted}).Error)
	downloaded, err := repo.IsDownloaded(ctx, "999")
	require.NoError(t, err)
	assert.True(t, downloaded)
}

func TestDownloadDeleteRemovesChapters(t *testing.T) {
	conn := openTestDB(t)
	repo := NewDownloadRepository(conn)
	ctx := context.Background()

	require.NoError(t, conn.Create(&models.Download{WorkID: "999", Status: models.DownloadCompleted}).Error)
	mine := sampleChapter("999", 1)
	require.NoError(t, conn.Create(&mine).Error)
	other := sampleChapter("888", 1)
	require.NoError(t, conn.Create(&other).Error)

	require.NoError(t, repo.Delete(ctx, "999"))

	_, err := repo.Get(ctx, "999")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var chapters []models.Chapter
	require.NoError(t, conn.Find(&chapters).Error)
	require.Len(t, chapters, 1)
	assert.Equal(t, "888", chapters[0].WorkID)
}

func TestClearFailedKeepsLiveDownloads(t *testing.T) {
	conn := openTestDB(t)
	repo := NewDownloadRepository(conn)
	ctx := context.Background()

	require.NoError(t, conn.Create(&models.Download{WorkID: "1", Status: models.DownloadFailed}).Error)
	require.NoError(t, conn.Create(&models.Download{WorkID: "2", Status: models.DownloadCancelled}).Error)
	require.NoError(t, conn.Create(&models.Download{WorkID: "3", Status: models.DownloadCompleted}).Error)
	require.NoError(t, conn.Create(&models.Download{WorkID: "4", Status: models.DownloadInProgress}).Error)

	require.NoError(t, repo.ClearFailed(ctx))

	downloads, err := repo.List(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(downloads))
	for _, d := range downloads {
		ids = append(ids, d.WorkID)
	}
	assert.ElementsMatch(t, []string{"3", "4"}, ids)
}

func TestDownloadsByStatus(t *testing.T) {
	conn := openTestDB(t)
	repo := NewDownloadRepository(conn)
	ctx := context.Background()

	require.NoError(t, conn.Create(&models.Download{WorkID: "1", Status: models.DownloadPending, StartedAt: 100}).Error)
	require.NoError(t, conn.Create(&models.Download{WorkID: "2", Status: models.DownloadPending, StartedAt: 200}).Error)
	require.NoError(t, conn.Create(&models.Download{WorkID: "3", Status: models.DownloadCompleted}).Error)

	pending, err := repo.ByStatus(ctx, models.DownloadPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "2", pending[0].WorkID, "newest first")

	n, err := repo.CompletedCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDownloadStatusTerminal(t *testing.T) {
	assert.False(t, models.DownloadPending.Terminal())
	assert.False(t, models.DownloadInProgress.Terminal())
	assert.True(t, models.DownloadCompleted.Terminal())
	assert.True(t, models.DownloadFailed.Terminal())
	assert.True(t, models.DownloadCancelled.Terminal())
}
