package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chris/taskchat/internal/db"
)

const (
	defaultMessagePage = 50
	maxMessagePage     = 200
)

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (h *handler) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.WithError(err).Warn("health check failed")
		return c.JSON(http.StatusServiceUnavailable, statusResponse{Status: "unhealthy"})
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "healthy"})
}

func (h *handler) listTasks(c echo.Context) error {
	status := strings.TrimSpace(c.QueryParam("status"))
	tasks, err := h.store.ListTasks(c.Request().Context(), userID(c), status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

func (h *handler) createTask(c echo.Context) error {
	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	task, err := h.store.CreateTask(c.Request().Context(), userID(c), req.Title, req.Description)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, task)
}

func (h *handler) getTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	task, err := h.store.GetTask(c.Request().Context(), userID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handler) updateTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req db.TaskUpdate
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Title == nil && req.Description == nil && req.Status == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nothing to update")
	}
	task, err := h.store.UpdateTask(c.Request().Context(), userID(c), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handler) completeTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	task, err := h.store.CompleteTask(c.Request().Context(), userID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handler) deleteTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.store.DeleteTask(c.Request().Context(), userID(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) listConversations(c echo.Context) error {
	convs, err := h.store.ListConversations(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convs)
}

func (h *handler) listMessages(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	limit := defaultMessagePage
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = min(limit, maxMessagePage)
	}

	ctx := c.Request().Context()
	if _, err := h.store.GetConversation(ctx, userID(c), id); err != nil {
		return err
	}
	msgs, err := h.store.RecentMessages(ctx, id, limit)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []db.Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}
