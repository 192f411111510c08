package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/atmos-esg/atmos/internal/emissions"
	"github.com/atmos-esg/atmos/internal/platform/httpx"
)

// Handler wires emissions record endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *emissions.Service
	validate *validator.Validate
}

// NewHandler constructs the emissions handler.
func NewHandler(logger *slog.Logger, service *emissions.Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers emissions record routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/emissions/records", h.handleIngest)
	r.Get("/emissions/records", h.handleList)
}

type ingestRequest struct {
	EntityID         uuid.UUID `json:"entity_id" validate:"required"`
	ReportingYear    int       `json:"reporting_year" validate:"required,gte=1990,lte=2100"`
	TotalCO2e        *float64  `json:"total_co2e" validate:"omitempty,gte=0"`
	Scope1CO2e       *float64  `json:"scope1_co2e" validate:"omitempty,gte=0"`
	Scope2CO2e       *float64  `json:"scope2_co2e" validate:"omitempty,gte=0"`
	Scope3CO2e       *float64  `json:"scope3_co2e" validate:"omitempty,gte=0"`
	ValidationStatus string    `json:"validation_status" validate:"omitempty,oneof=unvalidated validated approved"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	record, err := h.service.Ingest(r.Context(), emissions.IngestInput{
		EntityID:         req.EntityID,
		ReportingYear:    req.ReportingYear,
		TotalCO2e:        req.TotalCO2e,
		Scope1CO2e:       req.Scope1CO2e,
		Scope2CO2e:       req.Scope2CO2e,
		Scope3CO2e:       req.Scope3CO2e,
		ValidationStatus: emissions.ValidationStatus(req.ValidationStatus),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, record)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	entityID, err := uuid.Parse(query.Get("entity_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entity_id query parameter required")
		return
	}
	year, _ := strconv.Atoi(query.Get("year"))
	records, err := h.service.ListForEntity(r.Context(), entityID, year)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, emissions.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, emissions.ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("emissions request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
