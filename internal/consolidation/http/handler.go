package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/atmos-esg/atmos/internal/company"
	"github.com/atmos-esg/atmos/internal/consolidation"
	"github.com/atmos-esg/atmos/internal/platform/httpx"
	"github.com/atmos-esg/atmos/internal/shared"
)

// PDFRenderClient defines the minimal subset of the report client we use.
type PDFRenderClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// CompanyNamer resolves display names for report headers.
type CompanyNamer interface {
	CompanyName(ctx context.Context, id uuid.UUID) (string, error)
}

// Handler wires consolidation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *consolidation.Service
	validate  *validator.Validate
	pdfClient PDFRenderClient
	names     CompanyNamer
}

// NewHandler constructs the consolidation handler. The PDF client and company
// namer are optional; without them the PDF export responds 503.
func NewHandler(logger *slog.Logger, service *consolidation.Service, pdfClient PDFRenderClient, names CompanyNamer) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validate:  validator.New(),
		pdfClient: pdfClient,
		names:     names,
	}
}

// MountRoutes registers consolidation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/companies/{companyID}/consolidations", h.handleCreate)
	r.Get("/companies/{companyID}/consolidations", h.handleList)
	r.Get("/companies/{companyID}/consolidations/summary", h.handleSummary)
	r.Get("/consolidations/{id}", h.handleGet)
	r.Post("/consolidations/{id}/approve", h.handleApprove)
	r.Get("/consolidations/{id}/export.csv", h.handleExportCSV)
	r.Get("/consolidations/{id}/export.pdf", h.handleExportPDF)
	r.Get("/consolidations/{id}/events", h.handleListEvents)
}

type createRequest struct {
	ReportingYear          int            `json:"reporting_year" validate:"required,gte=1990,lte=2100"`
	PeriodStart            time.Time      `json:"period_start" validate:"required"`
	PeriodEnd              time.Time      `json:"period_end" validate:"required"`
	Method                 string         `json:"method"`
	IncludeScope3          bool           `json:"include_scope3"`
	IncludeEntities        []uuid.UUID    `json:"include_entities"`
	ExcludeEntities        []uuid.UUID    `json:"exclude_entities"`
	MinOwnershipThreshold  float64        `json:"min_ownership_threshold" validate:"gte=0,lte=100"`
	OperationalControlOnly bool           `json:"operational_control_only"`
	MinQualityScore        float64        `json:"min_quality_score" validate:"gte=0,lte=100"`
	RequireCompleteData    bool           `json:"require_complete_data"`
	Adjustments            map[string]any `json:"adjustments"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "companyID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid company id")
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.CreateConsolidation(r.Context(), consolidation.CreateInput{
		CompanyID:              companyID,
		ReportingYear:          req.ReportingYear,
		PeriodStart:            req.PeriodStart,
		PeriodEnd:              req.PeriodEnd,
		Method:                 req.Method,
		IncludeScope3:          req.IncludeScope3,
		IncludeEntities:        req.IncludeEntities,
		ExcludeEntities:        req.ExcludeEntities,
		MinOwnershipThreshold:  req.MinOwnershipThreshold,
		OperationalControlOnly: req.OperationalControlOnly,
		MinQualityScore:        req.MinQualityScore,
		RequireCompleteData:    req.RequireCompleteData,
		Adjustments:            req.Adjustments,
		ActorID:                shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	result, err := h.service.GetConsolidation(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "companyID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid company id")
		return
	}
	query := r.URL.Query()
	filters := consolidation.ListFilters{Status: query.Get("status")}
	if raw := query.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid year filter")
			return
		}
		filters.ReportingYear = year
	}
	filters.Limit, _ = strconv.Atoi(query.Get("limit"))
	filters.Offset, _ = strconv.Atoi(query.Get("offset"))

	results, err := h.service.ListConsolidations(r.Context(), companyID, filters)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"consolidations": results})
}

type approveRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.ApproveConsolidation(r.Context(), id, shared.ActorFromContext(r.Context()), req.Notes)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "companyID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid company id")
		return
	}
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "year query parameter required")
		return
	}
	summary, err := h.service.GetConsolidationSummary(r.Context(), companyID, year)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	result, err := h.service.GetConsolidation(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	buf := &bytes.Buffer{}
	if err := consolidation.WriteCSV(buf, result); err != nil {
		h.logger.Error("consolidation csv export", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	filename := fmt.Sprintf("consolidation_%d_v%d.csv", result.ReportingYear, result.Version)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	if h.pdfClient == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Temporarily Unavailable", "pdf rendering not configured")
		return
	}
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	result, err := h.service.GetConsolidation(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	companyName := result.CompanyID.String()
	if h.names != nil {
		if name, err := h.names.CompanyName(r.Context(), result.CompanyID); err == nil && name != "" {
			companyName = name
		}
	}
	pdf, err := h.pdfClient.RenderHTML(r.Context(), consolidation.ReportHTML(result, companyName))
	if err != nil {
		h.logger.Error("consolidation pdf export", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Temporarily Unavailable", "pdf rendering failed")
		return
	}
	filename := fmt.Sprintf("consolidation_%d_v%d.pdf", result.ReportingYear, result.Version)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	events, err := h.service.ListAuditEvents(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid consolidation id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, consolidation.ErrNotFound), errors.Is(err, company.ErrNotFound), errors.Is(err, company.ErrEntityNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, consolidation.ErrNoEligibleEntities):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, consolidation.ErrAlreadyApproved), errors.Is(err, consolidation.ErrVersionConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, consolidation.ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("consolidation request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
