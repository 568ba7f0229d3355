package handlers

import (
	"net/http"
)

// Health is a liveness signal only; it does not touch the record store or
// the work queue.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
