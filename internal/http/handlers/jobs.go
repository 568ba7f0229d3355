package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tamecalm/job-processor/internal/domain"
)

type createJobRequest struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// jobResponse is the wire shape of a job. Result, completedAt and failedAt
// are emitted as explicit nulls so clients can observe them being cleared
// by a retry.
type jobResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Data        json.RawMessage `json:"data"`
	Status      string          `json:"status"`
	Result      *string         `json:"result"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt"`
	FailedAt    *time.Time      `json:"failedAt"`
}

func toJobResponse(job *domain.Job) jobResponse {
	return jobResponse{
		ID:          job.ID,
		Name:        job.Name,
		Data:        job.Payload,
		Status:      string(job.Status),
		Result:      job.Result,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
		FailedAt:    job.FailedAt,
	}
}

// JobsCreate handles POST /jobs.
func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Name == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}
	if len(req.Data) > 0 && !json.Valid(req.Data) {
		a.error(w, http.StatusBadRequest, "bad_request", "data must be valid JSON")
		return
	}

	job, err := a.Jobs.Create(r.Context(), req.Name, req.Data)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.json(w, http.StatusCreated, toJobResponse(job))
}

// JobsList handles GET /jobs?status=&limit=.
func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	status := domain.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown status filter")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	jobs, err := a.Jobs.List(r.Context(), status, limit)
	if err != nil {
		a.writeError(w, err)
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, toJobResponse(&jobs[i]))
	}
	a.json(w, http.StatusOK, out)
}

// JobsGet handles GET /jobs/{id}.
func (a *App) JobsGet(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// JobsDelete handles DELETE /jobs/{id}; the deleted record is returned.
func (a *App) JobsDelete(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// JobsRetry handles POST /jobs/{id}/retry.
func (a *App) JobsRetry(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// writeError maps the domain error set onto HTTP responses. Anything
// outside the set is a server error; the cause is logged, not leaked.
func (a *App) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, domain.ErrStateConflict):
		a.error(w, http.StatusBadRequest, "state_conflict", "only failed jobs can be retried")
	case errors.Is(err, domain.ErrInvalidJob):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrQueueUnavailable):
		a.error(w, http.StatusServiceUnavailable, "queue_unavailable", "work queue did not accept the job")
	default:
		a.Logger.Error().Err(err).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
