package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"go-ao3/models"
	"go-ao3/repository"
	"go-ao3/worker"
)

type DownloadHandler struct {
	Works     *repository.WorkRepository
	Downloads *repository.DownloadRepository
	Engine    *worker.Engine
}

// StartDownload queues a full-work download. The work must already be in
// the cache so the job carries its title and chapter count. Starting an
// active download again is a no-op.
func (h *DownloadHandler) StartDownload(c echo.Context) error {
	id := c.Param("id")

	work, err := h.Works.WorkOnce(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Work not found, fetch it first")
		}
		return err
	}

	queued, err := h.Engine.EnqueueDownload(c.Request().Context(), id, work.Title, work.CurrentChapters)
	if err != nil {
		return err
	}
	if !queued {
		return c.JSON(http.StatusOK, map[string]interface{}{"queued": false, "message": "Download already active"})
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"queued": true})
}

func (h *DownloadHandler) CancelDownload(c echo.Context) error {
	if err := h.Engine.CancelDownload(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Cancellation requested"})
}

func (h *DownloadHandler) ListDownloads(c echo.Context) error {
	if status := c.QueryParam("status"); status != "" {
		downloads, err := h.Downloads.ByStatus(c.Request().Context(), models.DownloadStatus(status))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, downloads)
	}
	downloads, err := h.Downloads.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, downloads)
}

func (h *DownloadHandler) GetDownload(c echo.Context) error {
	download, err := h.Downloads.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Download not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, download)
}

// DeleteDownload removes the download row and its stored chapters.
func (h *DownloadHandler) DeleteDownload(c echo.Context) error {
	if err := h.Downloads.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Download and chapters deleted"})
}

func (h *DownloadHandler) ClearFailedDownloads(c echo.Context) error {
	if err := h.Downloads.ClearFailed(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Failed downloads cleared"})
}
