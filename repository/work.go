package repository

import (
	"context"
	"errors"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-ao3/models"
)

type WorkRepository struct {
	DB     *gorm.DB
	Source RemoteSource
}

func NewWorkRepository(db *gorm.DB, source RemoteSource) *WorkRepository {
	return &WorkRepository{DB: db, Source: source}
}

// GetWork resolves a work cache-first. The stream emits Loading, then
// exactly one Success or Error, and closes. A cache hit never touches
// the network; a remote failure leaves the store untouched.
func (r *WorkRepository) GetWork(ctx context.Context, workID string, forceRefresh bool) <-chan models.Resource[models.WorkDetail] {
	out := make(chan models.Resource[models.WorkDetail], 2)
	go func() {
		defer close(out)
		out <- models.Loading[models.WorkDetail]()

		if !forceRefresh {
			var cached models.Work
			err := r.DB.WithContext(ctx).First(&cached, "id = ?", workID).Error
			if err == nil {
				out <- models.Success(r.decorate(ctx, cached))
				return
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				out <- models.Failure[models.WorkDetail](err.Error())
				return
			}
		}

		remote, err := r.Source.GetWork(ctx, workID)
		if err != nil {
			out <- models.Failure[models.WorkDetail](err.Error())
			return
		}
		if err := r.SaveWork(ctx, remote); err != nil {
			out <- models.Failure[models.WorkDetail](err.Error())
			return
		}
		out <- models.Success(r.decorate(ctx, *remote))
	}()
	return out
}

// GetChapter resolves one chapter cache-first, keyed by (workID, number).
func (r *WorkRepository) GetChapter(ctx context.Context, workID string, number int, forceRefresh bool) <-chan models.Resource[models.Chapter] {
	out := make(chan models.Resource[models.Chapter], 2)
	go func() {
		defer close(out)
		out <- models.Loading[models.Chapter]()

		if !forceRefresh {
			var cached models.Chapter
			err := r.DB.WithContext(ctx).First(&cached, "id = ?", models.ChapterKey(workID, number)).Error
			if err == nil {
				out <- models.Success(cached)
				return
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				out <- models.Failure[models.Chapter](err.Error())
				return
			}
		}

		remote, err := r.Source.GetChapter(ctx, workID, number)
		if err != nil {
			out <- models.Failure[models.Chapter](err.Error())
			return
		}
		if err := r.SaveChapter(ctx, remote); err != nil {
			out <- models.Failure[models.Chapter](err.Error())
			return
		}
		out <- models.Success(*remote)
	}()
	return out
}

// WorkOnce is a point read with no network fallback.
func (r *WorkRepository) WorkOnce(ctx context.Context, workID string) (*models.Work, error) {
	var work models.Work
	if err := r.DB.WithContext(ctx).First(&work, "id = ?", workID).Error; err != nil {
		return nil, err
	}
	return &work, nil
}

// ChaptersForWork lists cached chapters in ascending number order.
func (r *WorkRepository) ChaptersForWork(ctx context.Context, workID string) ([]models.Chapter, error) {
	var chapters []models.Chapter
	err := r.DB.WithContext(ctx).
		Where("work_id = ?", workID).
		Order("number ASC").
		Find(&chapters).Error
	return chapters, err
}

// WorksByAuthor lists cached works by author name, newest update first.
func (r *WorkRepository) WorksByAuthor(ctx context.Context, author string) ([]models.Work, error) {
	var works []models.Work
	err := r.DB.WithContext(ctx).
		Where("author = ?", author).
		Order("updated_date DESC").
		Find(&works).Error
	return works, err
}

// FetchAllChapters retrieves the full chapter list in one remote call
// without touching the store. The download loop persists chapters one at
// a time, so a cancelled download keeps exactly what it already stored.
func (r *WorkRepository) FetchAllChapters(ctx context.Context, workID string) ([]models.Chapter, error) {
	return r.Source.GetAllChapters(ctx, workID)
}

// SaveWork upserts a work by id (last write wins) and rebuilds its tag
// associations in the same transaction.
func (r *WorkRepository) SaveWork(ctx context.Context, work *models.Work) error {
	work.CachedAt = models.NowMillis()
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(work).Error; err != nil {
			return err
		}
		return syncWorkTags(tx, work)
	})
}

// SaveWorks upserts a batch of works. One work's failure is logged and
// skipped so an opportunistic cache write never sinks the batch.
func (r *WorkRepository) SaveWorks(ctx context.Context, works []models.Work) {
	for i := range works {
		if err := r.SaveWork(ctx, &works[i]); err != nil {
			log.Printf("Error caching work %s: %v", works[i].ID, err)
		}
	}
}

func (r *WorkRepository) SaveChapter(ctx context.Context, chapter *models.Chapter) error {
	chapter.CachedAt = models.NowMillis()
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(chapter).Error
}

func (r *WorkRepository) SaveChapters(ctx context.Context, chapters []models.Chapter) error {
	now := models.NowMillis()
	for i := range chapters {
		chapters[i].CachedAt = now
	}
	if len(chapters) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&chapters).Error
}

// DeleteWork removes a work together with its chapters, bookmark and tag
// joins. Relations share the work id, so the cascade is explicit here.
func (r *WorkRepository) DeleteWork(ctx context.Context, workID string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("work_id = ?", workID).Delete(&models.Chapter{}).Error; err != nil {
			return err
		}
		if err := tx.Where("work_id = ?", workID).Delete(&models.Bookmark{}).Error; err != nil {
			return err
		}
		if err := tx.Where("work_id = ?", workID).Delete(&models.WorkTag{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", workID).Delete(&models.Work{}).Error
	})
}

// ClearOldCache evicts work and chapter rows cached before the cutoff.
// Eviction policy is the caller's scheduling decision; there is no TTL
// here.
func (r *WorkRepository) ClearOldCache(ctx context.Context, cutoff int64) error {
	if err := r.DB.WithContext(ctx).Where("cached_at < ?", cutoff).Delete(&models.Work{}).Error; err != nil {
		return err
	}
	return r.DB.WithContext(ctx).Where("cached_at < ?", cutoff).Delete(&models.Chapter{}).Error
}

// decorate attaches the status flags, each looked up in its own table.
// The flags are never stored on the work row itself.
func (r *WorkRepository) decorate(ctx context.Context, work models.Work) models.WorkDetail {
	detail := models.WorkDetail{Work: work, IsComplete: work.IsComplete()}

	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Bookmark{}).Where("work_id = ?", work.ID).Count(&n).Error
	if err != nil {
		log.Printf("Error checking bookmark flag for work %s: %v", work.ID, err)
	}
	detail.IsBookmarked = n > 0

	n = 0
	err = r.DB.WithContext(ctx).Model(&models.Download{}).
		Where("work_id = ? AND status = ?", work.ID, models.DownloadCompleted).Count(&n).Error
	if err != nil {
		log.Printf("Error checking download flag for work %s: %v", work.ID, err)
	}
	detail.IsDownloaded = n > 0

	n = 0
	err = r.DB.WithContext(ctx).Model(&models.Following{}).Where("id = ?", work.ID).Count(&n).Error
	if err != nil {
		log.Printf("Error checking follow flag for work %s: %v", work.ID, err)
	}
	detail.IsFollowing = n > 0

	return detail
}

// syncWorkTags rebuilds the tag rows and join rows for one work and
// refreshes the usage counters of every touched tag.
func syncWorkTags(tx *gorm.DB, work *models.Work) error {
	type labelGroup struct {
		joined  string
		tagType models.TagType
	}
	groups := []labelGroup{
		{work.Fandoms, models.TagFandom},
		{work.Relationships, models.TagRelationship},
		{work.Characters, models.TagCharacter},
		{work.AdditionalTags, models.TagFreeform},
		{work.Warnings, models.TagWarning},
		{work.Categories, models.TagCategory},
		{work.Rating, models.TagRating},
	}

	var touched []string
	if err := tx.Model(&models.WorkTag{}).
		Where("work_id = ?", work.ID).
		Pluck("tag_name", &touched).Error; err != nil {
		return err
	}
	if err := tx.Where("work_id = ?", work.ID).Delete(&models.WorkTag{}).Error; err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, group := range groups {
		for _, label := range models.SplitLabels(group.joined) {
			if seen[label] {
				continue
			}
			seen[label] = true
			touched = append(touched, label)

			tag := models.Tag{Name: label, Type: group.tagType}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&tag).Error; err != nil {
				return err
			}
			join := models.WorkTag{WorkID: work.ID, TagName: label}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&join).Error; err != nil {
				return err
			}
		}
	}

	for _, name := range touched {
		err := tx.Model(&models.Tag{}).Where("name = ?", name).
			Update("count", tx.Session(&gorm.Session{NewDB: true}).
				Model(&models.WorkTag{}).Where("tag_name = ?", name).
				Select("COUNT(*)")).Error
		if err != nil {
			return err
		}
	}
	return nil
}
