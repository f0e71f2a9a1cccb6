package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-assess/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
	"github.com/mind-engage/mindengage-assess/internal/submission"
)

type answersRequest struct {
	Answers   []exam.Answer `json:"answers"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
}

func decodeAnswers(w http.ResponseWriter, r *http.Request) (answersRequest, bool) {
	var req answersRequest
	if r.ContentLength == 0 {
		return req, true
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		badRequest(w, "bad json")
		return req, false
	}
	return req, true
}

// PUT /exams/{examID}/submission
func AutosaveHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeAnswers(w, r)
		if !ok {
			return
		}
		sub, err := svc.Autosave(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "examID"), req.Answers)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, sub)
	}
}

type submitResponse struct {
	SubmissionID     string     `json:"submission_id"`
	Score            int        `json:"score"`
	PercentageScore  int        `json:"percentage_score"`
	Passed           bool       `json:"passed"`
	TotalPoints      int        `json:"total_points"`
	SubmittedAt      *time.Time `json:"submitted_at"`
	TimeSpentSeconds int64      `json:"time_spent_seconds"`
}

// POST /exams/{examID}/submit
func SubmitHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeAnswers(w, r)
		if !ok {
			return
		}
		sub, err := svc.Submit(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "examID"),
			req.Answers, req.StartedAt)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, submitResponse{
			SubmissionID:     sub.ID,
			Score:            sub.Score,
			PercentageScore:  sub.PercentageScore,
			Passed:           sub.Passed,
			TotalPoints:      sub.TotalPoints,
			SubmittedAt:      sub.SubmittedAt,
			TimeSpentSeconds: sub.TimeSpentSeconds,
		})
	}
}

// GET /exams/{examID}/submission
func GetSubmissionHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := svc.Get(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "examID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, sub)
	}
}

// GET /exams/{examID}/review
func ReviewHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rv, err := svc.Review(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "examID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, rv)
	}
}

// GET /submissions?exam_id=&learner_id=&status=&limit=&offset=
// Without submission:view-all the listing is scoped to the caller and hidden
// test diagnostics are removed.
func ListSubmissionsHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := exam.SubmissionListOpts{
			ExamID:    strings.TrimSpace(q.Get("exam_id")),
			LearnerID: strings.TrimSpace(q.Get("learner_id")),
			Status:    exam.Status(strings.TrimSpace(q.Get("status"))),
			Limit:     parseIntDefault(q.Get("limit"), 50),
			Offset:    parseIntDefault(q.Get("offset"), 0),
		}
		all := rbac.Can(r.Context(), rbac.PermSubmissionViewAll)
		if !all {
			opts.LearnerID = authmw.SubjectFromContext(r.Context())
		}
		list, err := svc.List(r.Context(), opts)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if !all {
			for i := range list {
				list[i] = exam.LearnerSubmission(list[i])
			}
		}
		respondJSON(w, http.StatusOK, list)
	}
}
