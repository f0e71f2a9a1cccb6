// Package submission drives the lifecycle of a learner's submission:
// not started, in progress (autosaved drafts), graded (terminal).
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/grading"
	syncx "github.com/mind-engage/mindengage-assess/internal/sync"
)

// EventSink receives audit events. *syncx.EventRepo implements it.
type EventSink interface {
	Append(ctx context.Context, e syncx.Event) error
}

type Service struct {
	store  exam.Store
	grader grading.Grader
	events EventSink
	now    func() time.Time
	log    zerolog.Logger

	gradeTimeout time.Duration
}

// DefaultGradingTimeout bounds one Submit from the first sandbox call to the
// final write.
const DefaultGradingTimeout = 5 * time.Minute

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithEvents(sink EventSink) Option      { return func(s *Service) { s.events = sink } }
func WithLogger(l zerolog.Logger) Option    { return func(s *Service) { s.log = l } }

// WithGradingTimeout sets how long Submit may spend grading and finalizing.
// Non-positive values keep DefaultGradingTimeout.
func WithGradingTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.gradeTimeout = d
		}
	}
}

func NewService(store exam.Store, grader grading.Grader, opts ...Option) *Service {
	s := &Service{store: store, grader: grader, now: time.Now, log: log.Logger, gradeTimeout: DefaultGradingTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SaveExam validates an authored exam and stores it. The server decides
// TotalPoints; whatever the author sent is ignored.
func (s *Service) SaveExam(ctx context.Context, e exam.Exam) (exam.Exam, []string, error) {
	warnings, err := e.Prepare()
	if err != nil {
		return exam.Exam{}, warnings, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if err := s.store.PutExam(ctx, e); err != nil {
		return exam.Exam{}, warnings, err
	}
	return e, warnings, nil
}

// ListExams lists published exams for learners and every exam for staff.
func (s *Service) ListExams(ctx context.Context, role exam.Role, opts exam.ListOpts) ([]exam.ExamSummary, error) {
	if !role.Staff() {
		opts.PublishedOnly = true
	}
	return s.store.ListExams(ctx, opts)
}

// TakingView is what a caller gets when opening an exam: the role-filtered
// exam plus the caller's own submission, if one exists.
type TakingView struct {
	Exam       exam.SanitizedExam `json:"exam"`
	Submission *exam.Submission   `json:"submission,omitempty"`
}

func (s *Service) ExamForTaking(ctx context.Context, learnerID, examID string, role exam.Role) (TakingView, error) {
	e, err := s.examFor(ctx, examID, role)
	if err != nil {
		return TakingView{}, err
	}
	view := TakingView{Exam: exam.Sanitize(e, role)}
	sub, err := s.store.GetSubmission(ctx, examID, learnerID)
	switch {
	case err == nil:
		ls := exam.LearnerSubmission(sub)
		view.Submission = &ls
	case !errors.Is(err, exam.ErrSubmissionNotFound):
		return TakingView{}, err
	}
	return view, nil
}

// Autosave creates the learner's in-progress submission on first call and
// replaces its answer set afterwards. Saving the same answers twice leaves
// the same state.
func (s *Service) Autosave(ctx context.Context, learnerID, examID string, answers []exam.Answer) (exam.Submission, error) {
	if _, err := s.examFor(ctx, examID, exam.RoleLearner); err != nil {
		return exam.Submission{}, err
	}
	sub, err := s.store.SaveDraft(ctx, examID, learnerID, exam.ClientAnswers(answers), s.now())
	if err != nil {
		return exam.Submission{}, err
	}
	return exam.LearnerSubmission(sub), nil
}

// Submit grades answers and moves the submission to graded. Only one call
// per (learner, exam) can win; the rest get exam.ErrAlreadySubmitted. If
// answers is empty the last autosaved draft is graded. startedAt may be nil.
//
// Once grading starts it is detached from ctx: a caller that goes away does
// not cancel it. If the grading timeout runs out first, nothing is finalized
// and the submission stays in progress.
func (s *Service) Submit(ctx context.Context, learnerID, examID string, answers []exam.Answer, startedAt *time.Time) (exam.Submission, error) {
	e, err := s.examFor(ctx, examID, exam.RoleLearner)
	if err != nil {
		return exam.Submission{}, err
	}

	existing, err := s.store.GetSubmission(ctx, examID, learnerID)
	found := err == nil
	switch {
	case found && existing.Graded():
		return exam.Submission{}, exam.ErrAlreadySubmitted
	case err != nil && !errors.Is(err, exam.ErrSubmissionNotFound):
		return exam.Submission{}, err
	}

	answers = exam.ClientAnswers(answers)
	if len(answers) == 0 && found {
		answers = exam.ClientAnswers(existing.Answers)
	}

	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.gradeTimeout)
	defer cancel()

	began := time.Now()
	graded := grading.GradeAll(gctx, s.grader, e, answers)
	if err := gctx.Err(); err != nil {
		s.log.Error().Err(err).Str("exam_id", examID).Str("learner_id", learnerID).
			Dur("timeout", s.gradeTimeout).Msg("grading did not finish, submission left in progress")
		return exam.Submission{}, fmt.Errorf("grading %s for %s: %w", examID, learnerID, err)
	}
	sum := grading.Aggregate(e, graded)

	now := s.now()
	start := now
	switch {
	case startedAt != nil && !startedAt.IsZero():
		start = *startedAt
	case found:
		start = existing.StartedAt
	}
	spent := int64(now.Sub(start) / time.Second)
	if spent < 0 {
		spent = 0
	}

	sub := exam.Submission{
		ExamID:           examID,
		LearnerID:        learnerID,
		Status:           exam.StatusGraded,
		Answers:          graded,
		StartedAt:        start,
		SubmittedAt:      &now,
		UpdatedAt:        now,
		TimeSpentSeconds: spent,
		Score:            sum.Score,
		PercentageScore:  sum.PercentageScore,
		Passed:           sum.Passed,
		TotalPoints:      sum.TotalPoints,
	}
	if found {
		sub.ID = existing.ID
	}
	saved, err := s.store.FinalizeSubmission(gctx, sub)
	if err != nil {
		if errors.Is(err, exam.ErrAlreadySubmitted) {
			s.log.Info().Str("exam_id", examID).Str("learner_id", learnerID).Msg("concurrent submit lost the race")
		}
		return exam.Submission{}, err
	}

	s.log.Info().
		Str("exam_id", examID).
		Str("learner_id", learnerID).
		Str("submission_id", saved.ID).
		Int("score", saved.Score).
		Int("total_points", saved.TotalPoints).
		Bool("passed", saved.Passed).
		Int("answers", len(graded)).
		Dur("grading_took", time.Since(began)).
		Msg("submission graded")
	s.recordGraded(gctx, saved)

	return exam.LearnerSubmission(saved), nil
}

func (s *Service) recordGraded(ctx context.Context, sub exam.Submission) {
	if s.events == nil {
		return
	}
	ev, err := syncx.NewSubmissionGraded(syncx.SubmissionGraded{
		SubmissionID:     sub.ID,
		ExamID:           sub.ExamID,
		LearnerID:        sub.LearnerID,
		Score:            sub.Score,
		PercentageScore:  sub.PercentageScore,
		Passed:           sub.Passed,
		TotalPoints:      sub.TotalPoints,
		TimeSpentSeconds: sub.TimeSpentSeconds,
	}, s.now())
	if err == nil {
		err = s.events.Append(ctx, ev)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("submission_id", sub.ID).Msg("audit event not recorded")
	}
}

// Get returns the learner's own submission in its latest state.
func (s *Service) Get(ctx context.Context, learnerID, examID string) (exam.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, examID, learnerID)
	if err != nil {
		return exam.Submission{}, err
	}
	return exam.LearnerSubmission(sub), nil
}

// Review returns the graded submission with the exam's answer keys revealed.
func (s *Service) Review(ctx context.Context, learnerID, examID string) (exam.ReviewView, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return exam.ReviewView{}, err
	}
	sub, err := s.store.GetSubmission(ctx, examID, learnerID)
	if err != nil {
		return exam.ReviewView{}, err
	}
	return exam.RevealForReview(e, sub)
}

// List is the staff view across learners; nothing is filtered out.
func (s *Service) List(ctx context.Context, opts exam.SubmissionListOpts) ([]exam.Submission, error) {
	return s.store.ListSubmissions(ctx, opts)
}

func (s *Service) examFor(ctx context.Context, examID string, role exam.Role) (exam.Exam, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return exam.Exam{}, err
	}
	if !e.IsPublished && !role.Staff() {
		return exam.Exam{}, exam.ErrExamNotPublished
	}
	return e, nil
}
