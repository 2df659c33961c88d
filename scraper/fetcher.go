package scraper

import (
	"bytes"
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// UserAgent identifies this client to the archive. The archive's terms
// require a fixed, identifying agent string; do not rotate it.
const UserAgent = "AO3Sync/1.0 (Educational Project)"

const fetchTimeout = 30 * time.Second

// Fetcher performs single HTTP GETs and returns parsed documents. It has
// no business logic; callers are responsible for throttling.
type Fetcher struct {
	timeout time.Duration
}

func NewFetcher() *Fetcher {
	return &Fetcher{timeout: fetchTimeout}
}

// FetchDocument issues one GET, following redirects, and parses the body.
// Non-2xx responses come back as *TransportError with the status code.
func (f *Fetcher) FetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	collector := colly.NewCollector(
		colly.UserAgent(UserAgent),
	)
	collector.SetRequestTimeout(f.timeout)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.5")
	})

	var doc *goquery.Document
	var fetchErr error

	collector.OnResponse(func(r *colly.Response) {
		parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			fetchErr = &TransportError{Message: err.Error()}
			return
		}
		doc = parsed
	})

	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = &TransportError{Status: status, Message: err.Error()}
	})

	if err := collector.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = &TransportError{Message: err.Error()}
	}
	collector.Wait()

	if err := ctx.Err(); err != nil && fetchErr == nil {
		fetchErr = &TransportError{Message: err.Error()}
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if doc == nil {
		return nil, &TransportError{Message: "empty response body"}
	}
	return doc, nil
}
