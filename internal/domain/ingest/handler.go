package ingest

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/halilibrahimsaltas/HIS/pkg/pagination"
)

type Handler struct {
	repo  QueueRepository
	queue *Queue
}

func NewHandler(repo QueueRepository, queue *Queue) *Handler {
	return &Handler{repo: repo, queue: queue}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/queue", h.ListEntries)
	api.GET("/queue/:id", h.GetEntry)
	api.POST("/queue/:id/retry", h.RetryEntry)
	api.GET("/devices/:id/queue", h.ListDeviceEntries)
}

func (h *Handler) ListEntries(c echo.Context) error {
	status := c.QueryParam("status")
	switch status {
	case "", StatusPending, StatusProcessing, StatusProcessed, StatusError, StatusManualReview:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	pg := pagination.FromContext(c)
	items, total, err := h.repo.List(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.repo.GetByID(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
	}
	return c.JSON(http.StatusOK, e)
}

// RetryEntry resets a failed or orphaned entry to PENDING and nudges
// the workers so the operator sees the effect immediately.
func (h *Handler) RetryEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.repo.Retry(c.Request().Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
		case errors.Is(err, ErrNotRetryable):
			return echo.NewHTTPError(http.StatusConflict, "entry is not retryable")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	h.queue.Nudge()
	return c.JSON(http.StatusOK, map[string]string{"status": StatusPending})
}

func (h *Handler) ListDeviceEntries(c echo.Context) error {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.repo.ListByDevice(c.Request().Context(), deviceID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
