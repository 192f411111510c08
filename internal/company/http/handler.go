package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/atmos-esg/atmos/internal/company"
	"github.com/atmos-esg/atmos/internal/platform/httpx"
	"github.com/atmos-esg/atmos/internal/shared"
)

// Handler wires company and entity endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *company.Service
	validate *validator.Validate
}

// NewHandler constructs the company handler.
func NewHandler(logger *slog.Logger, service *company.Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers company and entity routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/companies", h.handleCreateCompany)
	r.Get("/companies", h.handleListCompanies)
	r.Get("/companies/{companyID}", h.handleGetCompany)
	r.Patch("/companies/{companyID}", h.handleUpdateCompany)
	r.Post("/companies/{companyID}/entities", h.handleCreateEntity)
	r.Get("/companies/{companyID}/entities", h.handleListEntities)
	r.Patch("/companies/{companyID}/entities/{entityID}", h.handleUpdateEntity)
}

type companyRequest struct {
	Name         string `json:"name" validate:"required,max=255"`
	RegistryCode string `json:"registry_code" validate:"max=64"`
	Sector       string `json:"sector" validate:"max=128"`
}

type entityRequest struct {
	Name                string  `json:"name" validate:"required,max=255"`
	EntityType          string  `json:"entity_type" validate:"max=64"`
	OwnershipPercentage float64 `json:"ownership_percentage" validate:"gte=0,lte=100"`
	OperationalControl  bool    `json:"operational_control"`
	FinancialControl    *bool   `json:"financial_control"`
	Active              *bool   `json:"active"`
}

func (h *Handler) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreateCompany(r.Context(), company.CreateCompanyInput{
		Name:         req.Name,
		RegistryCode: req.RegistryCode,
		Sector:       req.Sector,
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseCompanyID(w, r)
	if !ok {
		return
	}
	found, err := h.service.GetCompany(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, found)
}

func (h *Handler) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	companies, err := h.service.ListCompanies(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"companies": companies})
}

func (h *Handler) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseCompanyID(w, r)
	if !ok {
		return
	}
	var req companyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.UpdateCompany(r.Context(), id, company.UpdateCompanyInput{
		Name:    req.Name,
		Sector:  req.Sector,
		ActorID: shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.parseCompanyID(w, r)
	if !ok {
		return
	}
	var req entityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreateEntity(r.Context(), company.CreateEntityInput{
		CompanyID:           companyID,
		Name:                req.Name,
		EntityType:          req.EntityType,
		OwnershipPercentage: req.OwnershipPercentage,
		OperationalControl:  req.OperationalControl,
		FinancialControl:    req.FinancialControl,
		ActorID:             shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListEntities(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.parseCompanyID(w, r)
	if !ok {
		return
	}
	entities, err := h.service.ListEntities(r.Context(), companyID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entities": entities})
}

func (h *Handler) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.parseCompanyID(w, r)
	if !ok {
		return
	}
	entityID, err := uuid.Parse(chi.URLParam(r, "entityID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entity id")
		return
	}
	var req entityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	updated, err := h.service.UpdateEntity(r.Context(), companyID, entityID, company.UpdateEntityInput{
		Name:                req.Name,
		EntityType:          req.EntityType,
		OwnershipPercentage: req.OwnershipPercentage,
		OperationalControl:  req.OperationalControl,
		FinancialControl:    req.FinancialControl,
		Active:              active,
		ActorID:             shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) parseCompanyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "companyID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid company id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, company.ErrNotFound), errors.Is(err, company.ErrEntityNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, company.ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("company request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
