package http

import (
	"net/http"
	"strconv"

	syncx "github.com/mind-engage/mindengage-assess/internal/sync"
)

// GET /events?after=<seq>&limit=  audit trail, oldest first
func ListEventsHandler(repo *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		events, err := repo.Since(r.Context(), after, parseIntDefault(r.URL.Query().Get("limit"), 100))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, events)
	}
}
