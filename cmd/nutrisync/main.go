package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nutrisync/internal/app"
	"nutrisync/internal/config"
	"nutrisync/internal/schedule"
	"nutrisync/internal/statusapi"
	"nutrisync/internal/util"
)

func main() {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	cfgPath := "config/nutrisync.yaml"
	if p := os.Getenv("NUTRISYNC_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	sched, err := schedule.New(a.Job, schedule.Options{
		Spec:         cfg.Schedule.Cron,
		Location:     cfg.Location(),
		RunAtStartup: cfg.Schedule.RunAtStartup,
		Log:          logger,
	})
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	var srv *http.Server
	if cfg.Server.Port > 0 {
		api := statusapi.NewStatusServer(a.Job, a.RunStore(), a.SummaryArchive(), logger)
		srv = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("status API listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status API failed", "error", err)
				stop()
			}
		}()
	}

	logger.Info("nutrisync starting",
		"strategy", a.Fetcher.Name(),
		"tab", cfg.Sheet.Tab,
		"cron", cfg.Schedule.Cron,
		"timezone", cfg.Schedule.Timezone,
	)

	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler failed", "error", err)
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status API shutdown", "error", err)
		}
	}
	logger.Info("nutrisync stopped")
}
