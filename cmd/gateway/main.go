package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	api "github.com/mind-engage/mindengage-assess/internal/api/http"
	auth "github.com/mind-engage/mindengage-assess/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assess/internal/config"
	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/grading"
	"github.com/mind-engage/mindengage-assess/internal/sandbox"
	"github.com/mind-engage/mindengage-assess/internal/submission"
	syncx "github.com/mind-engage/mindengage-assess/internal/sync"
)

func main() {
	cfg := config.Load()
	logger := cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("db open failed")
	}
	defer dbh.Close()
	store := exam.NewSQLStore(dbh, cfg.DBDriver)
	events := syncx.NewEventRepo(dbh, "")

	// --- Sandbox + grading ---
	langs := sandbox.DefaultLanguages()
	if cfg.Sandbox.LanguagesFile != "" {
		if langs, err = sandbox.LoadLanguages(cfg.Sandbox.LanguagesFile); err != nil {
			log.Fatal().Err(err).Str("file", cfg.Sandbox.LanguagesFile).Msg("language table")
		}
	}
	sb := sandbox.New(sandbox.Config{
		BaseURL:   cfg.Sandbox.URL,
		AuthToken: cfg.Sandbox.Token,
		Timeout:   cfg.Sandbox.Timeout,
		Languages: langs,
	})
	engine := grading.NewEngine(sb,
		grading.WithMaxConcurrency(cfg.Grading.MaxConcurrency),
		grading.WithTestTimeout(cfg.Grading.TestTimeout),
		grading.WithMaxRetries(cfg.Grading.MaxRetries),
		grading.WithPointsPolicy(grading.PointsPolicy(cfg.Grading.PointsPolicy)),
		grading.WithLogger(logger.With().Str("component", "grading").Logger()),
	)
	svc := submission.NewService(store, engine,
		submission.WithEvents(events),
		submission.WithGradingTimeout(cfg.Grading.SubmitTimeout),
		submission.WithLogger(logger.With().Str("component", "submission").Logger()),
	)

	if cfg.ExamsDir != "" {
		loadExams(ctx, svc, cfg.ExamsDir, logger)
	}

	// --- Router ---
	r := api.NewRouter(api.Deps{
		Service:     svc,
		Auth:        auth.NewAuthService(cfg.AuthHMACSecret),
		Users:       auth.NewUserRepo(dbh),
		Events:      events,
		DB:          dbh,
		DevLogin:    cfg.AuthDevLogin,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})

	s := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("mode", string(cfg.Mode)).
		Str("db", cfg.DBDriver).
		Str("sandbox", cfg.Sandbox.URL).
		Bool("dev_login", cfg.AuthDevLogin).
		Msg("listening")
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server")
	}
}

// loadExams stores every .json/.yaml/.yml exam in dir. Bad files are logged
// and skipped.
func loadExams(ctx context.Context, svc *submission.Service, dir string, logger zerolog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn().Err(err).Str("dir", dir).Msg("exams dir")
		return
	}
	for _, ent := range entries {
		switch filepath.Ext(ent.Name()) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		path := filepath.Join(dir, ent.Name())
		e, warnings, err := exam.LoadExamFile(path)
		if err != nil {
			logger.Warn().Err(err).Msg("skipping exam file")
			continue
		}
		if _, _, err := svc.SaveExam(ctx, e); err != nil {
			if errors.Is(err, exam.ErrExamLocked) {
				logger.Info().Str("exam_id", e.ID).Msg("exam has submissions, keeping stored copy")
				continue
			}
			logger.Warn().Err(err).Str("file", path).Msg("storing exam")
			continue
		}
		logger.Info().Str("exam_id", e.ID).Strs("warnings", warnings).Msg("exam loaded")
	}
}
