package service

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vselutin/lineage/internal/status"
	"github.com/vselutin/lineage/internal/storage"
	"github.com/vselutin/lineage/internal/update"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	root        string
	plans       *storage.PlanRepo
	activities  *storage.ActivityRepo
	lock        *storage.ProjectLock
	lockTimeout time.Duration
	statusEng   *status.Engine
	updateEng   *update.Engine
	logger      *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Root        string
	Plans       *storage.PlanRepo
	Activities  *storage.ActivityRepo
	Lock        *storage.ProjectLock
	LockTimeout time.Duration
	StatusEng   *status.Engine
	UpdateEng   *update.Engine
	Logger      *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		root:        cfg.Root,
		plans:       cfg.Plans,
		activities:  cfg.Activities,
		lock:        cfg.Lock,
		lockTimeout: cfg.LockTimeout,
		statusEng:   cfg.StatusEng,
		updateEng:   cfg.UpdateEng,
		logger:      cfg.Logger,
	}
}

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.Handle("GET /v1/status", chain(http.HandlerFunc(h.GetStatus)))
	mux.Handle("POST /v1/update", chain(http.HandlerFunc(h.PostUpdate)))

	mux.Handle("GET /v1/plans", chain(http.HandlerFunc(h.ListPlans)))
	mux.Handle("GET /v1/plans/{name}", chain(http.HandlerFunc(h.GetPlan)))
	mux.Handle("GET /v1/activities", chain(http.HandlerFunc(h.ListActivities)))

	mux.HandleFunc("GET /healthz", h.Healthz)
}

// Healthz — проверка живости.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
