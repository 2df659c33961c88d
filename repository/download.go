package repository

import (
	"context"

	"gorm.io/gorm"

	"go-ao3/models"
)

type DownloadRepository struct {
	DB *gorm.DB
}

func NewDownloadRepository(db *gorm.DB) *DownloadRepository {
	return &DownloadRepository{DB: db}
}

func (r *DownloadRepository) Get(ctx context.Context, workID string) (*models.Download, error) {
	var download models.Download
	if err := r.DB.WithContext(ctx).First(&download, "work_id = ?", workID).Error; err != nil {
		return nil, err
	}
	return &download, nil
}

func (r *DownloadRepository) List(ctx context.Context) ([]models.Download, error) {
	var downloads []models.Download
	err := r.DB.WithContext(ctx).Order("started_at DESC").Find(&downloads).Error
	return downloads, err
}

func (r *DownloadRepository) ByStatus(ctx context.Context, status models.DownloadStatus) ([]models.Download, error) {
	var downloads []models.Download
	err := r.DB.WithContext(ctx).
		Where("status = ?", status).
		Order("started_at DESC").
		Find(&downloads).Error
	return downloads, err
}

// IsDownloaded is true only for a COMPLETED download.
func (r *DownloadRepository) IsDownloaded(ctx context.Context, workID string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Download{}).
		Where("work_id = ? AND status = ?", workID, models.DownloadCompleted).
		Count(&n).Error
	return n > 0, err
}

// Delete removes a download and its chapters together. Chapters cached
// outside any download are untouched for other works.
func (r *DownloadRepository) Delete(ctx context.Context, workID string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("work_id = ?", workID).Delete(&models.Chapter{}).Error; err != nil {
			return err
		}
		return tx.Where("work_id = ?", workID).Delete(&models.Download{}).Error
	})
}

func (r *DownloadRepository) ClearFailed(ctx context.Context) error {
	return r.DB.WithContext(ctx).
		Where("status IN ?", []models.DownloadStatus{models.DownloadFailed, models.DownloadCancelled}).
		Delete(&models.Download{}).Error
}

func (r *DownloadRepository) CompletedCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Download{}).
		Where("status = ?", models.DownloadCompleted).
		Count(&n).Error
	return n, err
}
