// Package scraper turns archive pages into typed records. All remote
// operations funnel through a single shared throttle, so system-wide
// throughput is one request per interval no matter how many callers run
// concurrently.
package scraper

import (
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"go-ao3/models"
)

const DefaultBaseURL = "https://archiveofourown.org"

// Throttler gates every remote call. *ratelimit.Limiter satisfies it.
type Throttler interface {
	Throttle(ctx context.Context, op func() error) error
}

// DocumentFetcher retrieves a raw page.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, url string) (*goquery.Document, error)
}

type Scraper struct {
	Fetcher DocumentFetcher
	Limiter Throttler
	BaseURL string
}

func New(fetcher DocumentFetcher, limiter Throttler) *Scraper {
	return &Scraper{
		Fetcher: fetcher,
		Limiter: limiter,
		BaseURL: DefaultBaseURL,
	}
}

// SearchWorks fetches one page of search results. Page numbers are
// 1-indexed.
func (s *Scraper) SearchWorks(ctx context.Context, query string, page int) ([]models.Work, error) {
	target := fmt.Sprintf("%s/works/search?work_search%%5Bquery%%5D=%s&page=%d",
		s.BaseURL, url.QueryEscape(query), page)

	var works []models.Work
	err := s.Limiter.Throttle(ctx, func() error {
		doc, err := s.Fetcher.FetchDocument(ctx, target)
		if err != nil {
			return err
		}
		works = ParseSearchResults(doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return works, nil
}

// GetWork fetches the full metadata record for one work. The adult
// parameter keeps gated works from rendering as an empty consent page.
func (s *Scraper) GetWork(ctx context.Context, workID string) (*models.Work, error) {
	target := fmt.Sprintf("%s/works/%s?view_adult=true", s.BaseURL, workID)

	var work *models.Work
	err := s.Limiter.Throttle(ctx, func() error {
		doc, err := s.Fetcher.FetchDocument(ctx, target)
		if err != nil {
			return err
		}
		work, err = ParseWorkDetail(doc, workID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return work, nil
}

// GetChapter fetches a single chapter. Chapter 1 lives on the work page
// itself; later chapters use the chapter's ordinal position as its path
// identifier. That is an approximation: the archive's internal chapter
// ids are only visible on the work page, and display order is assumed to
// match them.
func (s *Scraper) GetChapter(ctx context.Context, workID string, number int) (*models.Chapter, error) {
	target := fmt.Sprintf("%s/works/%s?view_adult=true", s.BaseURL, workID)
	if number > 1 {
		target = fmt.Sprintf("%s/works/%s/chapters/%d?view_adult=true", s.BaseURL, workID, number)
	}

	var chapter *models.Chapter
	err := s.Limiter.Throttle(ctx, func() error {
		doc, err := s.Fetcher.FetchDocument(ctx, target)
		if err != nil {
			return err
		}
		chapter, err = ParseChapter(doc, workID, number)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chapter, nil
}

// GetAllChapters fetches every chapter of a work in one request via the
// full-work rendering. This is the bulk path downloads use instead of one
// request per chapter.
func (s *Scraper) GetAllChapters(ctx context.Context, workID string) ([]models.Chapter, error) {
	target := fmt.Sprintf("%s/works/%s?view_full_work=true&view_adult=true", s.BaseURL, workID)

	var chapters []models.Chapter
	err := s.Limiter.Throttle(ctx, func() error {
		doc, err := s.Fetcher.FetchDocument(ctx, target)
		if err != nil {
			return err
		}
		chapters = ParseAllChapters(doc, workID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chapters, nil
}
