package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"go-ao3/repository"
)

type BookmarkHandler struct {
	Bookmarks *repository.BookmarkRepository
}

func (h *BookmarkHandler) ListBookmarks(c echo.Context) error {
	bookmarks, err := h.Bookmarks.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bookmarks)
}

func (h *BookmarkHandler) GetBookmark(c echo.Context) error {
	bookmark, err := h.Bookmarks.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Bookmark not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, bookmark)
}

func (h *BookmarkHandler) AddBookmark(c echo.Context) error {
	var body struct {
		Notes *string `json:"notes"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := h.Bookmarks.Add(c.Request().Context(), c.Param("id"), body.Notes); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "Bookmarked"})
}

func (h *BookmarkHandler) RemoveBookmark(c echo.Context) error {
	if err := h.Bookmarks.Remove(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Bookmark removed"})
}

// UpdateProgress stores the reading position inside a work.
func (h *BookmarkHandler) UpdateProgress(c echo.Context) error {
	var body struct {
		Chapter        int     `json:"chapter"`
		ScrollPosition int     `json:"scroll_position"`
		Progress       float64 `json:"progress"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if body.Chapter < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid chapter number")
	}
	err := h.Bookmarks.UpdateReadingProgress(c.Request().Context(), c.Param("id"), body.Chapter, body.ScrollPosition, body.Progress)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Progress updated"})
}
