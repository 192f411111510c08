package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	companyhttp "github.com/atmos-esg/atmos/internal/company/http"
	consolidationhttp "github.com/atmos-esg/atmos/internal/consolidation/http"
	emissionshttp "github.com/atmos-esg/atmos/internal/emissions/http"
	"github.com/atmos-esg/atmos/internal/observability"
	referencehttp "github.com/atmos-esg/atmos/internal/reference/http"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	Auth                 *TokenAuth
	CompanyHandler       *companyhttp.Handler
	EmissionsHandler     *emissionshttp.Handler
	ConsolidationHandler *consolidationhttp.Handler
	ReferenceHandler     *referencehttp.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with Atmos defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if params.Auth != nil {
			r.Use(params.Auth.Middleware)
		}
		if params.CompanyHandler != nil {
			params.CompanyHandler.MountRoutes(r)
		}
		if params.EmissionsHandler != nil {
			params.EmissionsHandler.MountRoutes(r)
		}
		if params.ConsolidationHandler != nil {
			params.ConsolidationHandler.MountRoutes(r)
		}
		if params.ReferenceHandler != nil {
			params.ReferenceHandler.MountRoutes(r)
		}
	})

	return r
}
