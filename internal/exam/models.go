package exam

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Exam struct {
	ID              string     `json:"id" yaml:"id"`
	Title           string     `json:"title" yaml:"title"`
	AuthorID        string     `json:"author_id,omitempty" yaml:"author_id,omitempty"`
	Questions       []Question `json:"questions" yaml:"questions"`
	DurationMinutes int        `json:"duration_minutes" yaml:"duration_minutes"`
	PassingScore    int        `json:"passing_score" yaml:"passing_score"` // percentage, 0-100
	TotalPoints     int        `json:"total_points" yaml:"total_points"`
	IsPublished     bool       `json:"is_published" yaml:"is_published"`

	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

type ExamSummary struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	QuestionCount   int       `json:"question_count"`
	DurationMinutes int       `json:"duration_minutes"`
	PassingScore    int       `json:"passing_score"`
	TotalPoints     int       `json:"total_points"`
	IsPublished     bool      `json:"is_published"`
	CreatedAt       time.Time `json:"created_at"`
}

// Question returns the question with the given id, or nil.
func (e Exam) Question(id string) *Question {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i]
		}
	}
	return nil
}

// SumPoints adds up the points of every question.
func (e Exam) SumPoints() int {
	total := 0
	for _, q := range e.Questions {
		total += q.Points
	}
	return total
}

// Prepare validates the exam and fixes TotalPoints to the sum of question
// points. Soft authoring guidelines come back as warnings.
func (e *Exam) Prepare() (warnings []string, err error) {
	var errs []error
	if strings.TrimSpace(e.ID) == "" {
		errs = append(errs, errors.New("id required"))
	}
	if strings.TrimSpace(e.Title) == "" {
		errs = append(errs, errors.New("title required"))
	}
	if e.PassingScore < 0 || e.PassingScore > 100 {
		errs = append(errs, fmt.Errorf("passing_score %d outside 0-100", e.PassingScore))
	}
	if e.DurationMinutes < 0 {
		errs = append(errs, errors.New("duration_minutes must not be negative"))
	}
	if len(e.Questions) == 0 {
		errs = append(errs, errors.New("at least one question required"))
	}

	seen := map[string]bool{}
	for _, q := range e.Questions {
		if q.ID == "" {
			errs = append(errs, errors.New("question id required"))
			continue
		}
		if seen[q.ID] {
			errs = append(errs, fmt.Errorf("question %q: duplicate id", q.ID))
		}
		seen[q.ID] = true
		if q.Points <= 0 {
			errs = append(errs, fmt.Errorf("question %q: points must be > 0", q.ID))
		}
		switch b := q.Body.(type) {
		case MultipleChoice:
			if len(b.Options) < 2 {
				errs = append(errs, fmt.Errorf("question %q: needs at least two options", q.ID))
			}
			if !contains(b.Options, b.CorrectAnswer) {
				errs = append(errs, fmt.Errorf("question %q: correct answer is not one of the options", q.ID))
			}
		case ShortAnswer:
			if strings.TrimSpace(b.CorrectAnswer) == "" {
				errs = append(errs, fmt.Errorf("question %q: correct answer required", q.ID))
			}
		case Code:
			if len(b.TestCases) == 0 {
				errs = append(errs, fmt.Errorf("question %q: at least one test case required", q.ID))
				break
			}
			visible, hidden := b.VisibleAndHidden()
			if visible == 0 {
				warnings = append(warnings, fmt.Sprintf("question %q: no visible test case", q.ID))
			}
			if hidden == 0 {
				warnings = append(warnings, fmt.Sprintf("question %q: no hidden test case", q.ID))
			}
		case nil:
			errs = append(errs, fmt.Errorf("question %q: type required", q.ID))
		}
	}
	if len(errs) > 0 {
		return warnings, fmt.Errorf("%w: %w", ErrInvalidExam, errors.Join(errs...))
	}
	e.TotalPoints = e.SumPoints()
	return warnings, nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusGraded     Status = "graded"
)

type Submission struct {
	ID               string     `json:"id"`
	ExamID           string     `json:"exam_id"`
	LearnerID        string     `json:"learner_id"`
	Status           Status     `json:"status"`
	Answers          []Answer   `json:"answers"`
	StartedAt        time.Time  `json:"started_at"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
	TimeSpentSeconds int64      `json:"time_spent_seconds,omitempty"`
	Score            int        `json:"score"`
	PercentageScore  int        `json:"percentage_score"`
	Passed           bool       `json:"passed"`
	TotalPoints      int        `json:"total_points"`
}

func (s Submission) Graded() bool { return s.Status == StatusGraded }

// Answer is one response in a submission. IsCorrect, PointsEarned,
// TestResults and GradingError are written by the grader only.
type Answer struct {
	QuestionID   string       `json:"question_id"`
	Answer       string       `json:"answer"`
	Language     string       `json:"language,omitempty"`
	IsCorrect    *bool        `json:"is_correct,omitempty"`
	PointsEarned *int         `json:"points_earned,omitempty"`
	TestResults  []TestResult `json:"test_results,omitempty"`
	GradingError string       `json:"grading_error,omitempty"`
}

// ClientAnswers keeps only the learner-owned fields of incoming answers.
func ClientAnswers(in []Answer) []Answer {
	out := make([]Answer, 0, len(in))
	for _, a := range in {
		out = append(out, Answer{
			QuestionID: strings.TrimSpace(a.QuestionID),
			Answer:     a.Answer,
			Language:   strings.TrimSpace(a.Language),
		})
	}
	return out
}

type TestStatus string

const (
	TestOK                 TestStatus = "ok"
	TestWrongAnswer        TestStatus = "wrong_answer"
	TestCompileError       TestStatus = "compile_error"
	TestRuntimeError       TestStatus = "runtime_error"
	TestTimeLimit          TestStatus = "time_limit"
	TestSandboxUnavailable TestStatus = "sandbox_unavailable"
)

type TestResult struct {
	TestCaseID   string     `json:"test_case_id"`
	Hidden       bool       `json:"hidden,omitempty"`
	Passed       bool       `json:"passed"`
	ActualOutput string     `json:"actual_output,omitempty"`
	ErrorOutput  string     `json:"error_output,omitempty"`
	Status       TestStatus `json:"status"`
	TimeMs       int64      `json:"time_ms,omitempty"`
	MemoryKB     int64      `json:"memory_kb,omitempty"`
}

type ListOpts struct {
	Q             string
	PublishedOnly bool
	Limit         int
	Offset        int
}

type SubmissionListOpts struct {
	ExamID    string
	LearnerID string
	Status    Status
	Limit     int
	Offset    int
}
