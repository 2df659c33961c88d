package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"go-ao3/models"
)

type SearchRepository struct {
	DB     *gorm.DB
	Works  *WorkRepository
	Source RemoteSource
}

func NewSearchRepository(db *gorm.DB, works *WorkRepository, source RemoteSource) *SearchRepository {
	return &SearchRepository{DB: db, Works: works, Source: source}
}

// SearchWorks always goes to the network so ranking reflects the current
// remote state; results are written into the cache as a side effect but
// never read from it for this call. A blank query short-circuits to an
// empty success without a request.
func (r *SearchRepository) SearchWorks(ctx context.Context, query string, page int) <-chan models.Resource[[]models.Work] {
	out := make(chan models.Resource[[]models.Work], 2)
	go func() {
		defer close(out)
		out <- models.Loading[[]models.Work]()

		if strings.TrimSpace(query) == "" {
			out <- models.Success([]models.Work{})
			return
		}

		works, err := r.Source.SearchWorks(ctx, query, page)
		if err != nil {
			out <- models.Failure[[]models.Work](err.Error())
			return
		}

		// Opportunistic cache build; failures are logged inside and do
		// not fail the search.
		r.Works.SaveWorks(ctx, works)

		out <- models.Success(works)
	}()
	return out
}

// SearchCachedWorks is the offline path: a local substring match over
// title, author and summary.
func (r *SearchRepository) SearchCachedWorks(ctx context.Context, query string, limit, offset int) ([]models.Work, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + query + "%"

	var works []models.Work
	err := r.DB.WithContext(ctx).
		Where("title LIKE ? OR author LIKE ? OR summary LIKE ?", pattern, pattern, pattern).
		Order("updated_date DESC").
		Limit(limit).
		Offset(offset).
		Find(&works).Error
	return works, err
}
