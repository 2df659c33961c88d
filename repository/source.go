// Package repository is the cache-first data-access layer. Reads go to
// the local store first and fall back to the remote source on a miss or
// an explicit refresh; all remote failures surface as values, never
// panics.
package repository

import (
	"context"

	"go-ao3/models"
)

// RemoteSource is the typed view of the archive. *scraper.Scraper
// satisfies it; tests substitute fakes.
type RemoteSource interface {
	SearchWorks(ctx context.Context, query string, page int) ([]models.Work, error)
	GetWork(ctx context.Context, workID string) (*models.Work, error)
	GetChapter(ctx context.Context, workID string, number int) (*models.Chapter, error)
	GetAllChapters(ctx context.Context, workID string) ([]models.Chapter, error)
}
