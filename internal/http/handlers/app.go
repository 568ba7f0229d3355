package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tamecalm/job-processor/internal/domain"
)

// Lifecycle is the coordinator surface the handlers depend on.
type Lifecycle interface {
	Create(ctx context.Context, name string, payload json.RawMessage) (*domain.Job, error)
	Retry(ctx context.Context, id string) (*domain.Job, error)
	Delete(ctx context.Context, id string) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error)
}

// App bundles handler dependencies.
type App struct {
	Jobs   Lifecycle
	Logger zerolog.Logger
}

func NewApp(jobs Lifecycle, logger zerolog.Logger) *App {
	return &App{Jobs: jobs, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}
