package grading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/sandbox"
)

var ErrQuestionNotFound = errors.New("question not found")

// Outcome is the result of grading a single answer.
type Outcome struct {
	IsCorrect    bool
	PointsEarned int
	MaxPoints    int
	TestResults  []exam.TestResult
	// Err records why an answer could not be graded normally. It never
	// aborts grading of the rest of a submission.
	Err error
}

// Grader grades one answer against one question. A nil question means the
// answer referenced an unknown question id.
type Grader interface {
	Grade(ctx context.Context, q *exam.Question, a exam.Answer) Outcome
}

type PointsPolicy string

const (
	// PolicyBinary awards a code question's points only if every test passes.
	PolicyBinary PointsPolicy = "binary"
	// PolicyWeighted sums the points of passing tests when every test case
	// of the question carries a weight; otherwise binary applies.
	PolicyWeighted PointsPolicy = "weighted"
)

// Engine options

type Option func(*config)

type config struct {
	MaxConcurrency int           // concurrent sandbox calls per code question
	TestTimeout    time.Duration // per test case, independent of the sandbox's own limit
	MaxRetries     int           // extra attempts when the sandbox is unavailable
	RetryBackoff   time.Duration
	Policy         PointsPolicy
	Logger         zerolog.Logger
}

func WithMaxConcurrency(n int) Option         { return func(c *config) { c.MaxConcurrency = n } }
func WithTestTimeout(d time.Duration) Option  { return func(c *config) { c.TestTimeout = d } }
func WithMaxRetries(n int) Option             { return func(c *config) { c.MaxRetries = n } }
func WithRetryBackoff(d time.Duration) Option { return func(c *config) { c.RetryBackoff = d } }
func WithPointsPolicy(p PointsPolicy) Option  { return func(c *config) { c.Policy = p } }
func WithLogger(l zerolog.Logger) Option      { return func(c *config) { c.Logger = l } }

type Engine struct {
	cfg     config
	sandbox sandbox.Executor
}

// NewEngine builds the default grader. sb may be nil if no exam uses code
// questions; code answers then fail with ErrSandboxUnavailable per test.
func NewEngine(sb sandbox.Executor, opts ...Option) *Engine {
	cfg := config{
		MaxConcurrency: 4,
		TestTimeout:    10 * time.Second,
		MaxRetries:     2,
		RetryBackoff:   200 * time.Millisecond,
		Policy:         PolicyBinary,
		Logger:         log.Logger,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Engine{cfg: cfg, sandbox: sb}
}

func (g *Engine) Grade(ctx context.Context, q *exam.Question, a exam.Answer) Outcome {
	if q == nil {
		return Outcome{Err: fmt.Errorf("%w: %q", ErrQuestionNotFound, a.QuestionID)}
	}
	switch b := q.Body.(type) {
	case exam.MultipleChoice:
		return gradeMultipleChoice(*q, b, a.Answer)
	case exam.ShortAnswer:
		return gradeShortAnswer(*q, b, a.Answer)
	case exam.Code:
		lang := a.Language
		if strings.TrimSpace(lang) == "" {
			lang = b.Language
		}
		return g.GradeCode(ctx, *q, a.Answer, lang)
	default:
		return Outcome{MaxPoints: q.Points, Err: fmt.Errorf("question %q: no grading strategy for %T", q.ID, q.Body)}
	}
}

// --- Strategies ---

func gradeMultipleChoice(q exam.Question, b exam.MultipleChoice, answer string) Outcome {
	out := Outcome{MaxPoints: q.Points}
	if answer == b.CorrectAnswer {
		out.IsCorrect = true
		out.PointsEarned = q.Points
	}
	return out
}

func gradeShortAnswer(q exam.Question, b exam.ShortAnswer, answer string) Outcome {
	out := Outcome{MaxPoints: q.Points}
	if normalize(answer) == normalize(b.CorrectAnswer) {
		out.IsCorrect = true
		out.PointsEarned = q.Points
	}
	return out
}

// normalize lowercases and trims; punctuation is significant.
func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}
