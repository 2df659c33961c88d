package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"go-ao3/models"
	"go-ao3/repository"
	"go-ao3/worker"
)

type FollowingHandler struct {
	Following *repository.FollowingRepository
	Engine    *worker.Engine
}

func (h *FollowingHandler) ListFollowing(c echo.Context) error {
	if t := c.QueryParam("type"); t != "" {
		followings, err := h.Following.ByType(c.Request().Context(), models.FollowingType(t))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, followings)
	}
	followings, err := h.Following.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, followings)
}

func (h *FollowingHandler) FollowWork(c echo.Context) error {
	var body struct {
		Title           string `json:"title"`
		CurrentChapters int    `json:"current_chapters"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := h.Following.FollowWork(c.Request().Context(), c.Param("id"), body.Title, body.CurrentChapters); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "Following work"})
}

func (h *FollowingHandler) FollowAuthor(c echo.Context) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := h.Following.FollowAuthor(c.Request().Context(), c.Param("id"), body.Name); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "Following author"})
}

func (h *FollowingHandler) Unfollow(c echo.Context) error {
	if err := h.Following.Unfollow(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Unfollowed"})
}

func (h *FollowingHandler) ListUpdates(c echo.Context) error {
	followings, err := h.Following.WithUpdates(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, followings)
}

func (h *FollowingHandler) GetUpdateCount(c echo.Context) error {
	count, err := h.Following.UpdateCount(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"count": count})
}

func (h *FollowingHandler) MarkUpdateRead(c echo.Context) error {
	if err := h.Following.MarkUpdateRead(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Update marked read"})
}

// TriggerUpdateCheck schedules an immediate check instead of waiting for
// the next periodic run.
func (h *FollowingHandler) TriggerUpdateCheck(c echo.Context) error {
	h.Engine.TriggerUpdateCheck()
	return c.JSON(http.StatusAccepted, map[string]string{"message": "Update check triggered"})
}
