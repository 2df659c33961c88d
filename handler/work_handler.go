package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"go-ao3/models"
	"go-ao3/repository"
)

type WorkHandler struct {
	Works     *repository.WorkRepository
	Search    *repository.SearchRepository
	Bookmarks *repository.BookmarkRepository
}

// GetWork serves a work cache-first; `?refresh=true` forces a remote
// fetch through the rate limiter.
func (h *WorkHandler) GetWork(c echo.Context) error {
	id := c.Param("id")
	refresh := c.QueryParam("refresh") == "true"

	result := drain(h.Works.GetWork(c.Request().Context(), id, refresh))
	if result.Status == models.ResourceError {
		return echo.NewHTTPError(http.StatusBadGateway, result.Message)
	}
	return c.JSON(http.StatusOK, result.Data)
}

// GetChapter serves one chapter and records the view as the current
// reading position, bookmarking the work on first view.
func (h *WorkHandler) GetChapter(c echo.Context) error {
	workID := c.Param("work_id")
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid chapter number")
	}
	refresh := c.QueryParam("refresh") == "true"

	result := drain(h.Works.GetChapter(c.Request().Context(), workID, number, refresh))
	if result.Status == models.ResourceError {
		return echo.NewHTTPError(http.StatusBadGateway, result.Message)
	}

	if err := h.Bookmarks.RecordChapterView(c.Request().Context(), workID, number); err != nil {
		log.Printf("Error recording chapter view for work %s: %v", workID, err)
	}
	return c.JSON(http.StatusOK, result.Data)
}

// GetWorkChapters lists the locally cached chapters of a work.
func (h *WorkHandler) GetWorkChapters(c echo.Context) error {
	chapters, err := h.Works.ChaptersForWork(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, chapters)
}

// SearchWorks runs a remote search; results land in the cache as a side
// effect.
func (h *WorkHandler) SearchWorks(c echo.Context) error {
	query := c.QueryParam("q")
	page := 1
	if qp := c.QueryParam("page"); qp != "" {
		var err error
		page, err = strconv.Atoi(qp)
		if err != nil || page < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid page number")
		}
	}

	result := drain(h.Search.SearchWorks(c.Request().Context(), query, page))
	if result.Status == models.ResourceError {
		return echo.NewHTTPError(http.StatusBadGateway, result.Message)
	}
	return c.JSON(http.StatusOK, result.Data)
}

// SearchCachedWorks is the offline search over the local store.
func (h *WorkHandler) SearchCachedWorks(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	works, err := h.Search.SearchCachedWorks(c.Request().Context(), c.QueryParam("q"), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, works)
}

func (h *WorkHandler) GetWorksByAuthor(c echo.Context) error {
	works, err := h.Works.WorksByAuthor(c.Request().Context(), c.Param("author"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, works)
}

func (h *WorkHandler) DeleteWork(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.Works.WorkOnce(c.Request().Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Work not found")
		}
		return err
	}
	if err := h.Works.DeleteWork(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Work and associated data deleted"})
}

// ClearOldCache evicts works and chapters cached more than maxAgeDays
// ago (default 30).
func (h *WorkHandler) ClearOldCache(c echo.Context) error {
	days := 30
	if qp := c.QueryParam("maxAgeDays"); qp != "" {
		var err error
		days, err = strconv.Atoi(qp)
		if err != nil || days < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid maxAgeDays")
		}
	}
	cutoff := models.NowMillis() - int64(days)*24*60*60*1000
	if err := h.Works.ClearOldCache(c.Request().Context(), cutoff); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Old cache entries cleared"})
}

// drain consumes a resource stream down to its terminal value.
func drain[T any](ch <-chan models.Resource[T]) models.Resource[T] {
	var last models.Resource[T]
	for r := range ch {
		last = r
	}
	return last
}
