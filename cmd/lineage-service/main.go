// lineage-service — HTTP-сервис над проектом lineage: статус,
// пересчёт и просмотр планов и activities через REST API, метрики
// Prometheus и периодический пересчёт статуса по расписанию.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/vselutin/lineage/internal/project"
	"github.com/vselutin/lineage/internal/service"
	"github.com/vselutin/lineage/internal/status"
	"github.com/vselutin/lineage/internal/telemetry"
)

// defaultRefreshSpec — расписание фонового пересчёта статуса.
const defaultRefreshSpec = "@every 1m"

func main() {
	// .env подхватывается до чтения конфигурации; отсутствие — норма
	godotenv.Load()
	logger := telemetry.SetupLogger()
	logger.Info("starting lineage-service")

	ctx := context.Background()

	proj, err := project.Open(ctx, os.Getenv("LINEAGE_PROJECT_ROOT"), logger)
	if err != nil {
		logger.Error("failed to open project", "error", err)
		os.Exit(1)
	}
	defer proj.Close()
	logger.Info("project opened", "root", proj.Root)

	statusEng := proj.StatusEngine()
	handler := service.NewHandler(service.Config{
		Root:        proj.Root,
		Plans:       proj.Plans,
		Activities:  proj.Activities,
		Lock:        proj.Lock,
		LockTimeout: project.DefaultLockTimeout,
		StatusEng:   statusEng,
		UpdateEng:   proj.UpdateEngine(),
		Logger:      logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	// фоновый пересчёт статуса держит метрику lineage_status_clean
	// актуальной между запросами
	refreshSpec := defaultRefreshSpec
	if v := os.Getenv("LINEAGE_STATUS_REFRESH"); v != "" {
		refreshSpec = v
	}
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(refreshSpec, func() {
		report, err := statusEng.Compute(context.Background(), status.Options{})
		if err != nil {
			logger.Warn("background status refresh failed", "error", err)
			return
		}
		telemetry.ObserveStatus(report.Clean())
	}); err != nil {
		logger.Error("invalid status refresh schedule", "spec", refreshSpec, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	addr := ":8080"
	if v := os.Getenv("LINEAGE_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	sigCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-sigCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
