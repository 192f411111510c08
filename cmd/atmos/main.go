package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/atmos-esg/atmos/internal/app"
	"github.com/atmos-esg/atmos/internal/company"
	companyhttp "github.com/atmos-esg/atmos/internal/company/http"
	"github.com/atmos-esg/atmos/internal/consolidation"
	consolidationhttp "github.com/atmos-esg/atmos/internal/consolidation/http"
	"github.com/atmos-esg/atmos/internal/emissions"
	emissionshttp "github.com/atmos-esg/atmos/internal/emissions/http"
	"github.com/atmos-esg/atmos/internal/observability"
	"github.com/atmos-esg/atmos/internal/platform/cache"
	"github.com/atmos-esg/atmos/internal/platform/db"
	"github.com/atmos-esg/atmos/internal/reference"
	referencehttp "github.com/atmos-esg/atmos/internal/reference/http"
	"github.com/atmos-esg/atmos/internal/shared"
	"github.com/atmos-esg/atmos/jobs"
	"github.com/atmos-esg/atmos/report"
)

type companyNamer struct {
	service *company.Service
}

func (n companyNamer) CompanyName(ctx context.Context, id uuid.UUID) (string, error) {
	found, err := n.service.GetCompany(ctx, id)
	if err != nil {
		return "", err
	}
	return found.Name, nil
}

type refreshEnqueuer struct {
	client *jobs.Client
}

func (e refreshEnqueuer) EnqueueRefresh(ctx context.Context, reason string) error {
	_, err := e.client.EnqueueReferenceRefresh(ctx, jobs.ReferenceRefreshPayload{Reason: reason})
	return err
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, reference cache degraded", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	companyRepo := company.NewRepository(pool)
	companyService := company.NewService(companyRepo, auditLogger)
	companyHandler := companyhttp.NewHandler(logger, companyService)

	emissionsRepo := emissions.NewRepository(pool)
	emissionsService := emissions.NewService(emissionsRepo)
	emissionsHandler := emissionshttp.NewHandler(logger, emissionsService)

	referenceRepo := reference.NewRepository(pool)
	referenceCache := reference.NewCache(redisClient, cfg.ReferenceCacheTTL)
	referenceService := reference.NewService(referenceRepo, referenceCache)
	var enqueuer referencehttp.RefreshEnqueuer
	if redisClient != nil {
		jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Warn("jobs client unavailable, refresh runs inline", slog.Any("error", err))
		} else {
			defer func() {
				if err := jobsClient.Close(); err != nil {
					logger.Warn("jobs client close", slog.Any("error", err))
				}
			}()
			enqueuer = refreshEnqueuer{client: jobsClient}
		}
	}
	referenceHandler := referencehttp.NewHandler(logger, referenceService, enqueuer)

	consolidationRepo := consolidation.NewRepository(pool)
	consolidationService := consolidation.NewService(consolidationRepo, companyService, emissionsService, metrics, logger)
	pdfClient := report.NewClient(cfg.GotenbergURL)
	consolidationHandler := consolidationhttp.NewHandler(logger, consolidationService, pdfClient, companyNamer{service: companyService})

	auth := app.NewTokenAuth(logger, cfg.APITokenHash)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Auth:                 auth,
		CompanyHandler:       companyHandler,
		EmissionsHandler:     emissionsHandler,
		ConsolidationHandler: consolidationHandler,
		ReferenceHandler:     referenceHandler,
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
