package exam

import (
	"context"
	"time"
)

// Store persists exams and submissions. Exactly-once grading relies on the
// conditional writes of SaveDraft and FinalizeSubmission, not on callers
// serialising access.
type Store interface {
	// PutExam stores e, replacing an exam with the same id only while no
	// submission references it; otherwise it returns ErrExamLocked.
	PutExam(ctx context.Context, e Exam) error
	// GetExam returns the full exam, answer keys and hidden tests included.
	// Callers serving learners must pass it through Sanitize.
	GetExam(ctx context.Context, id string) (Exam, error)
	ListExams(ctx context.Context, opts ListOpts) ([]ExamSummary, error)

	GetSubmission(ctx context.Context, examID, learnerID string) (Submission, error)
	// SaveDraft creates the in-progress submission or replaces its answers.
	// It fails with ErrAlreadySubmitted once the submission is graded.
	SaveDraft(ctx context.Context, examID, learnerID string, answers []Answer, now time.Time) (Submission, error)
	// FinalizeSubmission writes a graded submission unless one is already
	// graded for the same (exam, learner), in which case it returns
	// ErrAlreadySubmitted and leaves the stored record untouched.
	FinalizeSubmission(ctx context.Context, s Submission) (Submission, error)
	ListSubmissions(ctx context.Context, opts SubmissionListOpts) ([]Submission, error)
}
