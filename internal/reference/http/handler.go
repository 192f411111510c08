package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atmos-esg/atmos/internal/platform/httpx"
	"github.com/atmos-esg/atmos/internal/reference"
)

// RefreshEnqueuer defers a factor cache refresh to the worker queue.
type RefreshEnqueuer interface {
	EnqueueRefresh(ctx context.Context, reason string) error
}

// Handler wires emission factor endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *reference.Service
	enqueuer RefreshEnqueuer
}

// NewHandler constructs the reference handler. The enqueuer is optional; when
// absent, refresh requests invalidate the cache synchronously.
func NewHandler(logger *slog.Logger, service *reference.Service, enqueuer RefreshEnqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer}
}

// MountRoutes registers reference data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reference/factors", h.handleList)
	r.Get("/reference/factors/{id}", h.handleGet)
	r.Post("/reference/refresh", h.handleRefresh)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := reference.Filters{Category: query.Get("category")}
	if raw := query.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid year filter")
			return
		}
		filters.PublishedYear = year
	}
	factors, err := h.service.ListFactors(r.Context(), filters)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"factors": factors})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid factor id")
		return
	}
	factor, err := h.service.GetFactor(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, factor)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueRefresh(r.Context(), reason); err != nil {
			h.logger.Error("enqueue reference refresh", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Temporarily Unavailable", "refresh queue unreachable")
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"status": "queued"})
		return
	}
	if err := h.service.Refresh(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "refreshed"})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, reference.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error("reference request failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
