package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-assess/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
	"github.com/mind-engage/mindengage-assess/internal/submission"
)

const maxExamBytes = 4 << 20

func roleOf(r *http.Request) exam.Role {
	return exam.Role(rbac.RoleFromContext(r.Context()))
}

// POST /exams  (JSON, or YAML with Content-Type application/yaml)
func UploadExamHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxExamBytes))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "exam too large"})
				return
			}
			badRequest(w, "read body")
			return
		}
		e, _, err := exam.DecodeExam(data, exam.FormatFromContentType(r.Header.Get("Content-Type")))
		if err != nil {
			respondError(w, r, err)
			return
		}
		e.AuthorID = authmw.SubjectFromContext(r.Context())
		saved, warnings, err := svc.SaveExam(r.Context(), e)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{
			"id":           saved.ID,
			"total_points": saved.TotalPoints,
			"warnings":     append([]string{}, warnings...),
		})
	}
}

// GET /exams?q=&limit=&offset=
func ListExamsHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListExams(r.Context(), roleOf(r), exam.ListOpts{
			Q:      strings.TrimSpace(r.URL.Query().Get("q")),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

// GET /exams/{examID}: role-filtered exam plus the caller's own submission.
func GetExamHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.ExamForTaking(r.Context(), authmw.SubjectFromContext(r.Context()),
			chi.URLParam(r, "examID"), roleOf(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, view)
	}
}
