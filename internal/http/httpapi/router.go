package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tamecalm/job-processor/internal/http/handlers"
	"github.com/tamecalm/job-processor/internal/middleware"
)

// NewRouter wires the job lifecycle endpoints. Authentication and request
// validation beyond body shape are upstream collaborators and not applied
// here.
func NewRouter(app *handlers.App, rateLimitPerMin int) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(app.Logger))
	if rateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(rateLimitPerMin, time.Minute))
	}

	r.Get("/health", app.Health)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", app.JobsCreate)
		r.Get("/", app.JobsList)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.JobsGet)
			r.Delete("/", app.JobsDelete)
			r.Post("/retry", app.JobsRetry)
		})
	})

	return r
}
