package grading

import (
	"context"

	"github.com/mind-engage/mindengage-assess/internal/exam"
)

type Summary struct {
	Score           int  `json:"score"`
	PercentageScore int  `json:"percentage_score"`
	Passed          bool `json:"passed"`
	TotalPoints     int  `json:"total_points"`
}

// Aggregate sums the points earned over graded answers and applies the
// exam's pass threshold. Integer arithmetic keeps it order independent.
func Aggregate(e exam.Exam, graded []exam.Answer) Summary {
	score := 0
	for _, a := range graded {
		if a.PointsEarned != nil {
			score += *a.PointsEarned
		}
	}
	pct := Percentage(score, e.TotalPoints)
	return Summary{
		Score:           score,
		PercentageScore: pct,
		Passed:          pct >= e.PassingScore,
		TotalPoints:     e.TotalPoints,
	}
}

// Percentage is score/total*100 rounded half up, or 0 when total is 0.
func Percentage(score, total int) int {
	if total <= 0 || score <= 0 {
		return 0
	}
	return (score*200 + total) / (2 * total)
}

// GradeAll grades answers against the exam's questions and returns them in
// submission order with the derived fields filled. When a question is
// answered more than once the last answer counts. An answer whose question
// does not exist scores zero; it never stops the others from being graded.
func GradeAll(ctx context.Context, g Grader, e exam.Exam, answers []exam.Answer) []exam.Answer {
	last := make(map[string]int, len(answers))
	for i, a := range answers {
		last[a.QuestionID] = i
	}
	out := make([]exam.Answer, 0, len(last))
	for i, a := range answers {
		if last[a.QuestionID] != i {
			continue
		}
		o := g.Grade(ctx, e.Question(a.QuestionID), a)
		graded := exam.Answer{
			QuestionID:   a.QuestionID,
			Answer:       a.Answer,
			Language:     a.Language,
			IsCorrect:    boolPtr(o.IsCorrect),
			PointsEarned: intPtr(o.PointsEarned),
			TestResults:  o.TestResults,
		}
		if o.Err != nil {
			graded.GradingError = o.Err.Error()
		}
		out = append(out, graded)
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }
