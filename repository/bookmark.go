package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"go-ao3/models"
)

type BookmarkRepository struct {
	DB *gorm.DB
}

func NewBookmarkRepository(db *gorm.DB) *BookmarkRepository {
	return &BookmarkRepository{DB: db}
}

func (r *BookmarkRepository) Get(ctx context.Context, workID string) (*models.Bookmark, error) {
	var bookmark models.Bookmark
	if err := r.DB.WithContext(ctx).First(&bookmark, "work_id = ?", workID).Error; err != nil {
		return nil, err
	}
	return &bookmark, nil
}

func (r *BookmarkRepository) List(ctx context.Context) ([]models.Bookmark, error) {
	var bookmarks []models.Bookmark
	err := r.DB.WithContext(ctx).Order("last_read_at DESC").Find(&bookmarks).Error
	return bookmarks, err
}

func (r *BookmarkRepository) IsBookmarked(ctx context.Context, workID string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Bookmark{}).Where("work_id = ?", workID).Count(&n).Error
	return n > 0, err
}

// Add creates a bookmark explicitly. Adding to an already-bookmarked
// work only replaces the notes.
func (r *BookmarkRepository) Add(ctx context.Context, workID string, notes *string) error {
	existing, err := r.Get(ctx, workID)
	if err == nil {
		existing.Notes = notes
		return r.DB.WithContext(ctx).Save(existing).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := models.NowMillis()
	bookmark := models.Bookmark{
		WorkID:         workID,
		CurrentChapter: 1,
		BookmarkedAt:   now,
		LastReadAt:     now,
		Notes:          notes,
	}
	return r.DB.WithContext(ctx).Create(&bookmark).Error
}

func (r *BookmarkRepository) Remove(ctx context.Context, workID string) error {
	return r.DB.WithContext(ctx).Where("work_id = ?", workID).Delete(&models.Bookmark{}).Error
}

// RecordChapterView auto-bookmarks a work on its first chapter view and
// keeps the reading position fresh on every later one.
func (r *BookmarkRepository) RecordChapterView(ctx context.Context, workID string, chapter int) error {
	now := models.NowMillis()

	existing, err := r.Get(ctx, workID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		bookmark := models.Bookmark{
			WorkID:         workID,
			CurrentChapter: chapter,
			BookmarkedAt:   now,
			LastReadAt:     now,
		}
		return r.DB.WithContext(ctx).Create(&bookmark).Error
	}
	if err != nil {
		return err
	}

	existing.CurrentChapter = chapter
	existing.LastReadAt = now
	return r.DB.WithContext(ctx).Save(existing).Error
}

// UpdateReadingProgress stores the position within the work. Progress is
// clamped to [0, 1].
func (r *BookmarkRepository) UpdateReadingProgress(ctx context.Context, workID string, chapter, scrollPosition int, progress float64) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	return r.DB.WithContext(ctx).Model(&models.Bookmark{}).
		Where("work_id = ?", workID).
		Updates(map[string]interface{}{
			"current_chapter": chapter,
			"scroll_position": scrollPosition,
			"progress":        progress,
			"last_read_at":    models.NowMillis(),
		}).Error
}

func (r *BookmarkRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Bookmark{}).Count(&n).Error
	return n, err
}
