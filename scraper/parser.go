package scraper

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"go-ao3/models"
)

const dateLayout = "2006-01-02"

// ParseSearchResults extracts work summaries from a search page. A result
// item with no id is skipped and logged; every other missing field gets a
// documented default, so one ragged item never aborts the batch.
func ParseSearchResults(doc *goquery.Document) []models.Work {
	var works []models.Work

	doc.Find("li.work").Each(func(_ int, item *goquery.Selection) {
		id := strings.TrimPrefix(item.AttrOr("id", ""), "work_")
		if id == "" {
			log.Printf("Skipping search result without work id")
			return
		}

		heading := item.Find("h4.heading").First()
		title := textOr(heading.Find("a[href*='/works/']").First(), "Unknown Title")
		authorLink := heading.Find("a[rel=author]").First()
		author := textOr(authorLink, "Anonymous")
		authorID := authorIDFromHref(authorLink.AttrOr("href", ""))

		stats := item.Find("dl.stats").First()
		current, total := parseChapterCount(stats.Find("dd.chapters").First().Text())
		date := parseDate(item.Find("p.datetime").First().Text())

		works = append(works, models.Work{
			ID:              id,
			Title:           title,
			Author:          author,
			AuthorID:        authorID,
			Summary:         strings.TrimSpace(item.Find("blockquote.summary").First().Text()),
			Rating:          textOr(item.Find("span.rating").First(), "Not Rated"),
			Warnings:        joinText(item.Find("li.warnings a")),
			Categories:      joinText(item.Find("span.category")),
			Fandoms:         joinText(item.Find("h5.fandoms a")),
			Relationships:   joinText(item.Find("li.relationships a")),
			Characters:      joinText(item.Find("li.characters a")),
			AdditionalTags:  joinText(item.Find("li.freeforms a")),
			Language:        textOr(stats.Find("dd.language").First(), "English"),
			PublishedDate:   date, // search results only show one date
			UpdatedDate:     date,
			Words:           statInt(stats, "dd.words"),
			CurrentChapters: current,
			TotalChapters:   total,
			Kudos:           statInt(stats, "dd.kudos"),
			BookmarksCount:  statInt(stats, "dd.bookmarks"),
			Hits:            statInt(stats, "dd.hits"),
		})
	})

	return works
}

// ParseWorkDetail extracts the full metadata record from a work page. A
// page with no preface (not found, or an unanswered adult-content gate)
// is a hard failure.
func ParseWorkDetail(doc *goquery.Document, workID string) (*models.Work, error) {
	if doc.Find("div.preface").Length() == 0 {
		return nil, &ParseError{Missing: "work preface"}
	}

	authorLink := doc.Find("a[rel=author]").First()
	stats := doc.Find("dl.stats").First()
	current, total := parseChapterCount(stats.Find("dd.chapters").First().Text())

	published := parseDate(stats.Find("dd.published").First().Text())
	updated := published
	if status := stats.Find("dd.status").First(); status.Length() > 0 {
		updated = parseDate(status.Text())
	}

	work := &models.Work{
		ID:              workID,
		Title:           textOr(doc.Find("h2.title").First(), "Unknown Title"),
		Author:          textOr(authorLink, "Anonymous"),
		AuthorID:        authorIDFromHref(authorLink.AttrOr("href", "")),
		Summary:         htmlOr(doc.Find("div.summary blockquote").First(), ""),
		Rating:          textOr(doc.Find("dd.rating a").First(), "Not Rated"),
		Warnings:        joinText(doc.Find("dd.warning a")),
		Categories:      joinText(doc.Find("dd.category a")),
		Fandoms:         joinText(doc.Find("dd.fandom a")),
		Relationships:   joinText(doc.Find("dd.relationship a")),
		Characters:      joinText(doc.Find("dd.character a")),
		AdditionalTags:  joinText(doc.Find("dd.freeform a")),
		Language:        textOr(stats.Find("dd.language").First(), "English"),
		PublishedDate:   published,
		UpdatedDate:     updated,
		Words:           statInt(stats, "dd.words"),
		CurrentChapters: current,
		TotalChapters:   total,
		Kudos:           statInt(stats, "dd.kudos"),
		BookmarksCount:  statInt(stats, "dd.bookmarks"),
		Hits:            statInt(stats, "dd.hits"),
	}

	if series := doc.Find("dd.series").First(); series.Length() > 0 {
		work.IsSeries = true
		if name := strings.TrimSpace(series.Find("a").First().Text()); name != "" {
			work.SeriesName = &name
		}
		if part := digitsToInt(series.Find("span.position").First().Text()); part != nil {
			work.SeriesPart = part
		}
	}

	return work, nil
}

// ParseChapter extracts one chapter from a work page. The body is
// required; everything else may be absent.
func ParseChapter(doc *goquery.Document, workID string, number int) (*models.Chapter, error) {
	return parseChapterBlock(doc.Selection, workID, number, true)
}

// ParseAllChapters applies the per-chapter extraction to every chapter
// block of a full-work rendering, numbered 1..N in document order.
func ParseAllChapters(doc *goquery.Document, workID string) []models.Chapter {
	var chapters []models.Chapter

	doc.Find("div.chapter").Each(func(i int, block *goquery.Selection) {
		chapter, err := parseChapterBlock(block, workID, i+1, false)
		if err != nil {
			// Does not happen with bodyRequired=false, kept for symmetry.
			log.Printf("Skipping chapter %d of work %s: %v", i+1, workID, err)
			return
		}
		chapters = append(chapters, *chapter)
	})

	return chapters
}

func parseChapterBlock(sel *goquery.Selection, workID string, number int, bodyRequired bool) (*models.Chapter, error) {
	body := sel.Find("div[role=article]").First()
	if bodyRequired && body.Length() == 0 {
		return nil, &ParseError{Missing: "chapter body"}
	}

	content := htmlOr(body, "")

	return &models.Chapter{
		ID:        models.ChapterKey(workID, number),
		WorkID:    workID,
		Number:    number,
		Title:     htmlPtr(sel.Find("h3.title").First()),
		Summary:   htmlPtr(sel.Find("div.summary blockquote").First()),
		Notes:     htmlPtr(sel.Find("div.notes blockquote").First()),
		EndNotes:  htmlPtr(sel.Find("div.end.notes blockquote").First()),
		Content:   content,
		WordCount: len(strings.Fields(body.Text())),
	}, nil
}

// parseChapterCount splits a "current/total" stat. The total keeps its
// string form because an ongoing work reports "?".
func parseChapterCount(raw string) (int, string) {
	parts := strings.SplitN(strings.TrimSpace(raw), "/", 2)
	current, err := strconv.Atoi(strings.ReplaceAll(parts[0], ",", ""))
	if err != nil {
		current = 1
	}
	total := "1"
	if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
		total = strings.TrimSpace(parts[1])
	}
	return current, total
}

// parseDate reads the archive's fixed date format. Absent or unparseable
// dates fall back to now, which is lossy for ordering comparisons.
func parseDate(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.NowMillis()
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return models.NowMillis()
	}
	return t.UnixMilli()
}

func statInt(stats *goquery.Selection, selector string) int {
	raw := strings.ReplaceAll(strings.TrimSpace(stats.Find(selector).First().Text()), ",", "")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func textOr(sel *goquery.Selection, fallback string) string {
	if text := strings.TrimSpace(sel.Text()); text != "" {
		return text
	}
	return fallback
}

func htmlOr(sel *goquery.Selection, fallback string) string {
	if sel.Length() == 0 {
		return fallback
	}
	html, err := sel.Html()
	if err != nil {
		return fallback
	}
	return strings.TrimSpace(html)
}

func htmlPtr(sel *goquery.Selection) *string {
	if sel.Length() == 0 {
		return nil
	}
	html, err := sel.Html()
	if err != nil {
		return nil
	}
	trimmed := strings.TrimSpace(html)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func joinText(sel *goquery.Selection) string {
	var parts []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, ", ")
}

func authorIDFromHref(href string) *string {
	const prefix = "/users/"
	idx := strings.Index(href, prefix)
	if idx < 0 {
		return nil
	}
	rest := href[idx+len(prefix):]
	if cut := strings.IndexByte(rest, '/'); cut >= 0 {
		rest = rest[:cut]
	}
	if rest == "" {
		return nil
	}
	return &rest
}

func digitsToInt(raw string) *int {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return nil
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return nil
	}
	return &n
}
