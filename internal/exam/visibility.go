package exam

import "fmt"

type Role string

const (
	RoleLearner Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

func (r Role) Staff() bool { return r == RoleTeacher || r == RoleAdmin }

type SanitizedExam struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	DurationMinutes int            `json:"duration_minutes"`
	PassingScore    int            `json:"passing_score"`
	TotalPoints     int            `json:"total_points"`
	Questions       []QuestionView `json:"questions"`
}

// QuestionView is the projection of a Question shown to a caller.
// CorrectAnswer and Solution are only ever filled for staff.
type QuestionView struct {
	ID              string         `json:"id"`
	Type            QuestionType   `json:"type"`
	Prompt          string         `json:"prompt,omitempty"`
	Points          int            `json:"points"`
	Options         []string       `json:"options,omitempty"`
	Language        string         `json:"language,omitempty"`
	CodeTemplate    string         `json:"code_template,omitempty"`
	Hints           []string       `json:"hints,omitempty"`
	TestCases       []TestCaseView `json:"test_cases,omitempty"`
	HiddenTestCount int            `json:"hidden_test_count,omitempty"`

	CorrectAnswer string `json:"correct_answer,omitempty"`
	Solution      string `json:"solution,omitempty"`
}

type TestCaseView struct {
	ID             string `json:"id,omitempty"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	IsHidden       bool   `json:"is_hidden,omitempty"`
}

// Sanitize projects an exam for the given role. Learners never see
// solutions, correct answers or hidden test cases; the input is not modified.
func Sanitize(e Exam, role Role) SanitizedExam {
	out := SanitizedExam{
		ID:              e.ID,
		Title:           e.Title,
		DurationMinutes: e.DurationMinutes,
		PassingScore:    e.PassingScore,
		TotalPoints:     e.TotalPoints,
		Questions:       make([]QuestionView, 0, len(e.Questions)),
	}
	for _, q := range e.Questions {
		out.Questions = append(out.Questions, viewQuestion(q, role.Staff()))
	}
	return out
}

func viewQuestion(q Question, staff bool) QuestionView {
	v := QuestionView{ID: q.ID, Type: q.Type(), Prompt: q.Prompt, Points: q.Points}
	switch b := q.Body.(type) {
	case MultipleChoice:
		v.Options = append([]string(nil), b.Options...)
		if staff {
			v.CorrectAnswer = b.CorrectAnswer
		}
	case ShortAnswer:
		if staff {
			v.CorrectAnswer = b.CorrectAnswer
		}
	case Code:
		v.Language = b.Language
		v.CodeTemplate = b.CodeTemplate
		v.Hints = append([]string(nil), b.Hints...)
		for i, tc := range b.TestCases {
			if tc.IsHidden && !staff {
				v.HiddenTestCount++
				continue
			}
			v.TestCases = append(v.TestCases, TestCaseView{
				ID:             TestCaseID(tc, i),
				Input:          tc.Input,
				ExpectedOutput: tc.ExpectedOutput,
				IsHidden:       tc.IsHidden,
			})
		}
		if staff {
			v.Solution = b.Solution
		}
	}
	return v
}

// TestCaseID is the identifier used for a test case in results. It falls
// back to the 1-based position when the author gave none.
func TestCaseID(tc TestCase, i int) string {
	if tc.ID != "" {
		return tc.ID
	}
	return fmt.Sprintf("t%d", i+1)
}

// LearnerSubmission hides hidden-test diagnostics from a learner's own
// submission. Pass/fail and status of hidden tests stay visible.
func LearnerSubmission(s Submission) Submission {
	out := s
	out.Answers = make([]Answer, len(s.Answers))
	for i, a := range s.Answers {
		a.TestResults = learnerResults(a.TestResults)
		out.Answers[i] = a
	}
	return out
}

func learnerResults(in []TestResult) []TestResult {
	if in == nil {
		return nil
	}
	out := make([]TestResult, len(in))
	for i, r := range in {
		if r.Hidden {
			r.ActualOutput = ""
			r.ErrorOutput = ""
		}
		out[i] = r
	}
	return out
}

type ReviewView struct {
	ExamID          string           `json:"exam_id"`
	Score           int              `json:"score"`
	PercentageScore int              `json:"percentage_score"`
	Passed          bool             `json:"passed"`
	TotalPoints     int              `json:"total_points"`
	Items           []ReviewQuestion `json:"items"`
}

type ReviewQuestion struct {
	QuestionView
	YourAnswer   string       `json:"your_answer"`
	Answered     bool         `json:"answered"`
	IsCorrect    bool         `json:"is_correct"`
	PointsEarned int          `json:"points_earned"`
	TestResults  []TestResult `json:"test_results,omitempty"`
}

// RevealForReview attaches grading outcome to the learner view of a graded
// submission. Correct answers of choice and text questions are revealed;
// reference solutions and hidden test data are not.
func RevealForReview(e Exam, s Submission) (ReviewView, error) {
	if !s.Graded() {
		return ReviewView{}, ErrNotGraded
	}
	answers := make(map[string]Answer, len(s.Answers))
	for _, a := range s.Answers {
		answers[a.QuestionID] = a
	}
	out := ReviewView{
		ExamID:          e.ID,
		Score:           s.Score,
		PercentageScore: s.PercentageScore,
		Passed:          s.Passed,
		TotalPoints:     s.TotalPoints,
		Items:           make([]ReviewQuestion, 0, len(e.Questions)),
	}
	for _, q := range e.Questions {
		item := ReviewQuestion{QuestionView: viewQuestion(q, false)}
		switch b := q.Body.(type) {
		case MultipleChoice:
			item.CorrectAnswer = b.CorrectAnswer
		case ShortAnswer:
			item.CorrectAnswer = b.CorrectAnswer
		}
		if a, ok := answers[q.ID]; ok {
			item.Answered = true
			item.YourAnswer = a.Answer
			if a.IsCorrect != nil {
				item.IsCorrect = *a.IsCorrect
			}
			if a.PointsEarned != nil {
				item.PointsEarned = *a.PointsEarned
			}
			item.TestResults = learnerResults(a.TestResults)
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}
