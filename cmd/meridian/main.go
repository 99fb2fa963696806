package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-pos/meridian-pos/internal/adjustment"
	"github.com/meridian-pos/meridian-pos/internal/alerts"
	"github.com/meridian-pos/meridian-pos/internal/app"
	"github.com/meridian-pos/meridian-pos/internal/batch"
	"github.com/meridian-pos/meridian-pos/internal/docnum"
	"github.com/meridian-pos/meridian-pos/internal/goodsreceipt"
	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/masterdata"
	"github.com/meridian-pos/meridian-pos/internal/observability"
	"github.com/meridian-pos/meridian-pos/internal/platform/cache"
	"github.com/meridian-pos/meridian-pos/internal/platform/db"
	"github.com/meridian-pos/meridian-pos/internal/returns"
	"github.com/meridian-pos/meridian-pos/internal/shared"
	"github.com/meridian-pos/meridian-pos/internal/transfer"
	"github.com/meridian-pos/meridian-pos/jobs"
)

func main() {
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
		logger.Warn("redis unavailable, alert cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	masterRepo := masterdata.NewRepository(pool)
	numbers := docnum.NewGenerator(docnum.NewPGStore(pool))

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, ledger.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock})
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	batchRepo := batch.NewRepository(pool)
	batchService := batch.NewService(batchRepo)
	batchHandler := batch.NewHandler(logger, batchService)

	receiptRepo := goodsreceipt.NewRepository(pool)
	receiptService := goodsreceipt.NewService(receiptRepo, ledgerService, batchService, masterRepo, masterRepo, masterRepo, numbers, auditLogger, idempotencyStore)
	receiptHandler := goodsreceipt.NewHandler(logger, receiptService)

	transferRepo := transfer.NewRepository(pool)
	transferService := transfer.NewService(transferRepo, ledgerService, masterRepo, masterRepo, numbers, auditLogger, idempotencyStore)
	transferHandler := transfer.NewHandler(logger, transferService)

	adjustmentRepo := adjustment.NewRepository(pool)
	adjustmentService := adjustment.NewService(adjustmentRepo, ledgerService, masterRepo, masterRepo, numbers, approvalRecorder, auditLogger, idempotencyStore)
	adjustmentHandler := adjustment.NewHandler(logger, adjustmentService)

	returnsRepo := returns.NewRepository(pool)
	returnsService := returns.NewService(returnsRepo, ledgerService, batchService, masterRepo, masterRepo, masterRepo, numbers, auditLogger, idempotencyStore)
	returnsHandler := returns.NewHandler(logger, returnsService)

	alertDetector := alerts.NewDetector(masterRepo, batchService, cfg.AlertExpiryWindowDays)
	alertCache := alerts.NewCache(redisClient, cfg.AlertCacheTTL)
	alertService := alerts.NewService(alertDetector, alertCache)
	alertHandler := alerts.NewHandler(logger, alertService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledgerHandler,
		BatchHandler:      batchHandler,
		ReceiptHandler:    receiptHandler,
		TransferHandler:   transferHandler,
		AdjustmentHandler: adjustmentHandler,
		ReturnsHandler:    returnsHandler,
		AlertsHandler:     alertHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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
