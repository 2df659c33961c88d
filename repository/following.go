package repository

import (
	"context"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-ao3/models"
)

type FollowingRepository struct {
	DB     *gorm.DB
	Works  *WorkRepository
	Source RemoteSource
}

func NewFollowingRepository(db *gorm.DB, works *WorkRepository, source RemoteSource) *FollowingRepository {
	return &FollowingRepository{DB: db, Works: works, Source: source}
}

func (r *FollowingRepository) FollowWork(ctx context.Context, workID, title string, currentChapters int) error {
	following := models.Following{
		ID:                workID,
		Type:              models.FollowWork,
		Name:              title,
		FollowedAt:        models.NowMillis(),
		LastKnownChapters: currentChapters,
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&following).Error
}

func (r *FollowingRepository) FollowAuthor(ctx context.Context, authorID, name string) error {
	following := models.Following{
		ID:         authorID,
		Type:       models.FollowAuthor,
		Name:       name,
		FollowedAt: models.NowMillis(),
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&following).Error
}

func (r *FollowingRepository) Unfollow(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Following{}).Error
}

func (r *FollowingRepository) IsFollowing(ctx context.Context, id string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Following{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (r *FollowingRepository) List(ctx context.Context) ([]models.Following, error) {
	var followings []models.Following
	err := r.DB.WithContext(ctx).Order("followed_at DESC").Find(&followings).Error
	return followings, err
}

func (r *FollowingRepository) ByType(ctx context.Context, t models.FollowingType) ([]models.Following, error) {
	var followings []models.Following
	err := r.DB.WithContext(ctx).
		Where("type = ?", t).
		Order("followed_at DESC").
		Find(&followings).Error
	return followings, err
}

func (r *FollowingRepository) WithUpdates(ctx context.Context) ([]models.Following, error) {
	var followings []models.Following
	err := r.DB.WithContext(ctx).
		Where("has_update = ?", true).
		Order("last_checked DESC").
		Find(&followings).Error
	return followings, err
}

// MarkUpdateRead clears the update flag after the user has seen it.
func (r *FollowingRepository) MarkUpdateRead(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Model(&models.Following{}).
		Where("id = ?", id).
		Update("has_update", false).Error
}

func (r *FollowingRepository) UpdateCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Following{}).
		Where("has_update = ?", true).
		Count(&n).Error
	return n, err
}

// CheckForUpdates walks every followed work and compares the remote
// chapter count against the last known one. A single item's failure is
// logged and skipped; the whole batch only fails if the followed list
// itself cannot be read. Returns how many items gained an update.
func (r *FollowingRepository) CheckForUpdates(ctx context.Context) (int, error) {
	followed, err := r.ByType(ctx, models.FollowWork)
	if err != nil {
		return 0, err
	}

	updateCount := 0
	for _, following := range followed {
		work, err := r.Source.GetWork(ctx, following.ID)
		if err != nil {
			log.Printf("Update check for work %s failed: %v", following.ID, err)
			continue
		}

		gained := work.CurrentChapters > following.LastKnownChapters
		if gained {
			updateCount++
		}

		// lastChecked, lastKnownChapters and hasUpdate move together.
		// The flag stays up until the user marks it read, even if a
		// later check sees no further change.
		err = r.DB.WithContext(ctx).Model(&models.Following{}).
			Where("id = ?", following.ID).
			Updates(map[string]interface{}{
				"last_checked":        models.NowMillis(),
				"last_known_chapters": work.CurrentChapters,
				"has_update":          following.HasUpdate || gained,
			}).Error
		if err != nil {
			log.Printf("Error updating follow state for work %s: %v", following.ID, err)
			continue
		}

		if err := r.Works.SaveWork(ctx, work); err != nil {
			log.Printf("Error caching refreshed work %s: %v", following.ID, err)
		}
	}

	return updateCount, nil
}
