package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	authmw "github.com/mind-engage/mindengage-assess/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
	"github.com/mind-engage/mindengage-assess/internal/submission"
	syncx "github.com/mind-engage/mindengage-assess/internal/sync"
)

// Pinger reports database readiness. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Users is the credential and role store behind login. *authmw.UserRepo
// implements it.
type Users interface {
	authmw.Verifier
	authmw.RoleLookup
}

type Deps struct {
	Service *submission.Service
	Auth    *authmw.AuthService
	Users   Users // nil: dev logins only, roles from token claims
	Events  *syncx.EventRepo
	DB      Pinger

	DevLogin       bool
	CORSOrigins    []string
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

func NewRouter(d Deps) chi.Router {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(hlog.NewHandler(d.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", dur).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var verifier authmw.Verifier
	if d.Users != nil {
		verifier = d.Users
	}
	timeout := middleware.Timeout(d.RequestTimeout)
	r.With(timeout).Post("/auth/login", authmw.LoginHandler(d.Auth, verifier, d.DevLogin))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.With(timeout).Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.DB != nil {
			if err := d.DB.PingContext(r.Context()); err != nil {
				hlog.FromRequest(r).Warn().Err(err).Msg("not ready")
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth))
		if d.Users != nil {
			pr.Use(authmw.AttachRoleFromDB(d.Users, d.DevLogin))
		}

		// Submit is bounded by the service's grading timeout, not the
		// request timeout.
		pr.With(rbac.Require(rbac.PermSubmissionSubmit)).Post("/exams/{examID}/submit", SubmitHandler(d.Service))

		pr.Group(func(tr chi.Router) {
			tr.Use(timeout)

			tr.With(rbac.Require(rbac.PermExamCreate)).Post("/exams", UploadExamHandler(d.Service))
			tr.With(rbac.Require(rbac.PermExamView)).Get("/exams", ListExamsHandler(d.Service))
			tr.With(rbac.Require(rbac.PermExamView)).Get("/exams/{examID}", GetExamHandler(d.Service))

			tr.With(rbac.Require(rbac.PermSubmissionSave)).Put("/exams/{examID}/submission", AutosaveHandler(d.Service))
			tr.With(rbac.Require(rbac.PermSubmissionViewOwn)).Get("/exams/{examID}/submission", GetSubmissionHandler(d.Service))
			tr.With(rbac.Require(rbac.PermSubmissionViewOwn)).Get("/exams/{examID}/review", ReviewHandler(d.Service))
			tr.With(rbac.RequireAny(rbac.PermSubmissionViewOwn, rbac.PermSubmissionViewAll)).
				Get("/submissions", ListSubmissionsHandler(d.Service))

			if d.Events != nil {
				tr.With(rbac.Require(rbac.PermAuditView)).Get("/events", ListEventsHandler(d.Events))
			}
		})
	})
	return r
}
