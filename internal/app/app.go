package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/talx-hub/credit-ledger/internal/api/handlers"
	"github.com/talx-hub/credit-ledger/internal/config"
	"github.com/talx-hub/credit-ledger/internal/dbmanager"
	"github.com/talx-hub/credit-ledger/internal/model"
	"github.com/talx-hub/credit-ledger/internal/observability"
	"github.com/talx-hub/credit-ledger/internal/repo"
	"github.com/talx-hub/credit-ledger/internal/router"
	"github.com/talx-hub/credit-ledger/internal/scheduler"
	"github.com/talx-hub/credit-ledger/internal/service/allocation"
	"github.com/talx-hub/credit-ledger/internal/service/ledger"
	"github.com/talx-hub/credit-ledger/internal/service/report"
	"github.com/talx-hub/credit-ledger/internal/utils/logger"
)

func initService(ctx context.Context, log *slog.Logger,
) (http.Handler, *scheduler.Scheduler, *config.Config) {
	cfg := config.NewBuilder(log).
		FromEnv().
		FromFlags().
		GetConfig()

	const connectTO = 2 * time.Second
	connectCtx, cancel := context.WithTimeout(ctx, connectTO)
	defer cancel()
	dbManager := dbmanager.New(cfg.DatabaseURI, log).
		Connect(connectCtx).
		ApplyMigrations(connectCtx).
		Ping(connectCtx)
	if err := dbManager.Error(); err != nil {
		log.LogAttrs(ctx,
			slog.LevelError,
			"failed to start service: db connection error",
			slog.Any(model.KeyLoggerError, err),
		)
		return nil, nil, nil
	}

	pool, err := dbManager.GetPool(ctx)
	if err != nil {
		log.LogAttrs(ctx,
			slog.LevelError,
			"failed to start service: failed to get DB pool",
			slog.Any(model.KeyLoggerError, err),
		)
		return nil, nil, nil
	}

	walletRepo := repo.NewWalletRepository(pool, log)
	ruleRepo := repo.NewRuleRepository(pool, log)
	memberRepo := repo.NewMemberRepository(pool, log)
	reportRepo := repo.NewReportRepository(pool, log)

	ledgerSvc := ledger.New(walletRepo, cfg.HistoryPageSize, log)
	engine := allocation.New(ruleRepo, memberRepo, ledgerSvc,
		model.DefaultAllocationWorkerCount, log)
	reportSvc := report.New(reportRepo)

	metrics := observability.New()

	rr := router.New(cfg, log)
	rr.SetRouter(&struct {
		*handlers.WalletHandler
		*handlers.RuleHandler
		*handlers.AllocationHandler
		*handlers.ReportHandler
		*handlers.MemberHandler
		*handlers.HealthHandler
	}{
		WalletHandler:     handlers.NewWalletHandler(ledgerSvc, metrics, log),
		RuleHandler:       handlers.NewRuleHandler(engine, log),
		AllocationHandler: handlers.NewAllocationHandler(engine, metrics, log),
		ReportHandler:     handlers.NewReportHandler(reportSvc, log),
		MemberHandler:     handlers.NewMemberHandler(memberRepo, log),
		HealthHandler:     handlers.NewHealthHandler(dbManager),
	}, metrics)

	sched := scheduler.New(engine, cfg.AllocationInterval)

	return rr.GetRouter(), sched, cfg
}

func RunServer(log *slog.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux, sched, cfg := initService(ctx, log)
	if mux == nil {
		log.LogAttrs(ctx,
			slog.LevelError,
			"failed to init service",
		)
		return
	}

	go sched.Run(logger.WithContext(ctx, log))

	srv := &http.Server{
		Addr:    cfg.RunAddr,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		const shutdownTO = 5 * time.Second
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), shutdownTO)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.LogAttrs(shutdownCtx,
				slog.LevelError,
				"server shutdown error",
				slog.Any(model.KeyLoggerError, err),
			)
		}
	}()

	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.LogAttrs(ctx,
			slog.LevelError,
			"listen and serve error",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}
