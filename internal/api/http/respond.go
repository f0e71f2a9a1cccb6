package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"github.com/mind-engage/mindengage-assess/internal/exam"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, exam.ErrAlreadySubmitted),
		errors.Is(err, exam.ErrNotGraded),
		errors.Is(err, exam.ErrExamLocked):
		return http.StatusConflict
	case errors.Is(err, exam.ErrExamNotFound),
		errors.Is(err, exam.ErrSubmissionNotFound),
		errors.Is(err, exam.ErrExamNotPublished):
		return http.StatusNotFound
	case errors.Is(err, exam.ErrInvalidExam):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		msg = "internal error"
	case errors.Is(err, exam.ErrExamNotPublished):
		// unpublished exams are indistinguishable from missing ones
		msg = exam.ErrExamNotFound.Error()
	}
	respondJSON(w, status, map[string]string{"error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
