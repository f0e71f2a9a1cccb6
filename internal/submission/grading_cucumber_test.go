//go:build cucumber

package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cucumber/godog"

	"github.com/mind-engage/mindengage-assess/internal/exam"
)

// TestGradingScenarios runs the grading feature scenarios.
func TestGradingScenarios(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "grading",
		ScenarioInitializer: InitializeGradingScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{filepath.Join("..", "..", "features", "grading.feature")},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatalf("non-zero godog status")
	}
}

func InitializeGradingScenario(ctx *godog.ScenarioContext) {
	s := &gradingState{}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		s.reset()
		return ctx, nil
	})

	ctx.Step(`^a multiple choice question "([^"]+)" worth (\d+) points with answer "([^"]*)"$`, s.multipleChoice)
	ctx.Step(`^a short answer question "([^"]+)" worth (\d+) points with answer "([^"]*)"$`, s.shortAnswer)
	ctx.Step(`^a code question "([^"]+)" worth (\d+) points with (\d+) visible and (\d+) hidden tests$`, s.codeQuestion)
	ctx.Step(`^the exam passes at (\d+)%$`, s.passesAt)
	ctx.Step(`^hidden test (\d+) of "([^"]+)" expects "([^"]*)"$`, s.hiddenExpects)
	ctx.Step(`^the sandbox is down for hidden tests$`, s.sandboxDownForHidden)
	ctx.Step(`^the exam is published$`, s.publish)

	ctx.Step(`^learner "([^"]+)" answers "([^"]+)" with "([^"]*)"$`, s.answer)
	ctx.Step(`^learner "([^"]+)" submits$`, s.submit)
	ctx.Step(`^learner "([^"]+)" submits (\d+) times concurrently$`, s.submitConcurrently)
	ctx.Step(`^learner "([^"]+)" autosaves (\d+) times$`, s.autosave)

	ctx.Step(`^learner "([^"]+)" scores (\d+) points and (\d+)%$`, s.scores)
	ctx.Step(`^learner "([^"]+)" (passed|failed)$`, s.verdict)
	ctx.Step(`^question "([^"]+)" of learner "([^"]+)" earned (\d+) points$`, s.questionEarned)
	ctx.Step(`^exactly (\d+) submissions? succeeded and the rest were rejected as already submitted$`, s.exactlyOnce)
	ctx.Step(`^learner "([^"]+)" has (\d+) stored submissions?$`, s.storedCount)
	ctx.Step(`^the submission of learner "([^"]+)" is in progress$`, s.inProgress)
	ctx.Step(`^test (\d+) of "([^"]+)" for learner "([^"]+)" has status "([^"]+)"$`, s.testStatus)
	ctx.Step(`^the learner view of the exam does not contain "([^"]*)"$`, s.learnerViewLacks)
	ctx.Step(`^the staff view of the exam contains "([^"]*)"$`, s.staffViewHas)
}

type gradingState struct {
	f       *fixture
	exam    exam.Exam
	answers map[string][]exam.Answer
	results map[string]exam.Submission
	wins    int
	losses  int
}

func (s *gradingState) reset() {
	s.f = newFixtureFor()
	s.exam = exam.Exam{ID: "feature", Title: "Feature exam"}
	s.answers = map[string][]exam.Answer{}
	s.results = map[string]exam.Submission{}
	s.wins, s.losses = 0, 0
}

func (s *gradingState) multipleChoice(id string, points int, key string) error {
	s.exam.Questions = append(s.exam.Questions, exam.Question{
		ID: id, Prompt: "Pick one", Points: points,
		Body: exam.MultipleChoice{Options: []string{key, "London", "Rome"}, CorrectAnswer: key},
	})
	return nil
}

func (s *gradingState) shortAnswer(id string, points int, key string) error {
	s.exam.Questions = append(s.exam.Questions, exam.Question{
		ID: id, Prompt: "Type it", Points: points, Body: exam.ShortAnswer{CorrectAnswer: key},
	})
	return nil
}

// Test inputs are echoed back by the fake sandbox, so a test passes when
// its expected output equals its input.
func (s *gradingState) codeQuestion(id string, points, visible, hidden int) error {
	var tcs []exam.TestCase
	for i := 1; i <= visible; i++ {
		in := fmt.Sprintf("visible-%d", i)
		tcs = append(tcs, exam.TestCase{Input: in, ExpectedOutput: in})
	}
	for i := 1; i <= hidden; i++ {
		in := fmt.Sprintf("HIDDEN-%d", i)
		tcs = append(tcs, exam.TestCase{Input: in, ExpectedOutput: in, IsHidden: true})
	}
	s.exam.Questions = append(s.exam.Questions, exam.Question{
		ID: id, Prompt: "Echo the input", Points: points,
		Body: exam.Code{Language: "python", Solution: "print(input()) # reference", TestCases: tcs},
	})
	return nil
}

func (s *gradingState) passesAt(pct int) error {
	s.exam.PassingScore = pct
	return nil
}

func (s *gradingState) hiddenExpects(n int, qid, expected string) error {
	q := s.exam.Question(qid)
	if q == nil {
		return fmt.Errorf("no question %q", qid)
	}
	code := q.Body.(exam.Code)
	seen := 0
	for i := range code.TestCases {
		if code.TestCases[i].IsHidden {
			seen++
			if seen == n {
				code.TestCases[i].ExpectedOutput = expected
				q.Body = code
				return nil
			}
		}
	}
	return fmt.Errorf("question %q has no hidden test %d", qid, n)
}

func (s *gradingState) sandboxDownForHidden() error {
	s.f.sb.mu.Lock()
	defer s.f.sb.mu.Unlock()
	for i := 1; i <= 10; i++ {
		s.f.sb.down[fmt.Sprintf("HIDDEN-%d", i)] = true
	}
	return nil
}

func (s *gradingState) publish() error {
	s.exam.IsPublished = true
	_, _, err := s.f.svc.SaveExam(context.Background(), s.exam)
	return err
}

func (s *gradingState) answer(learner, qid, value string) error {
	s.answers[learner] = append(s.answers[learner], exam.Answer{QuestionID: qid, Answer: value, Language: "python"})
	return nil
}

func (s *gradingState) submit(learner string) error {
	sub, err := s.f.svc.Submit(context.Background(), learner, s.exam.ID, s.answers[learner], nil)
	if err != nil {
		return err
	}
	s.results[learner] = sub
	return nil
}

func (s *gradingState) submitConcurrently(learner string, n int) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := s.f.svc.Submit(context.Background(), learner, s.exam.ID, s.answers[learner], nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				s.wins++
				s.results[learner] = sub
			case errors.Is(err, exam.ErrAlreadySubmitted):
				s.losses++
			case firstErr == nil:
				firstErr = err
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func (s *gradingState) autosave(learner string, n int) error {
	for i := 0; i < n; i++ {
		if _, err := s.f.svc.Autosave(context.Background(), learner, s.exam.ID, s.answers[learner]); err != nil {
			return err
		}
	}
	return nil
}

func (s *gradingState) result(learner string) (exam.Submission, error) {
	sub, ok := s.results[learner]
	if !ok {
		return exam.Submission{}, fmt.Errorf("learner %q has not submitted", learner)
	}
	return sub, nil
}

func (s *gradingState) scores(learner string, points, pct int) error {
	sub, err := s.result(learner)
	if err != nil {
		return err
	}
	if sub.Score != points || sub.PercentageScore != pct {
		return fmt.Errorf("got %d points / %d%%, want %d / %d%%", sub.Score, sub.PercentageScore, points, pct)
	}
	return nil
}

func (s *gradingState) verdict(learner, v string) error {
	sub, err := s.result(learner)
	if err != nil {
		return err
	}
	if sub.Passed != (v == "passed") {
		return fmt.Errorf("passed=%v, want %s", sub.Passed, v)
	}
	return nil
}

func (s *gradingState) gradedAnswer(learner, qid string) (exam.Answer, error) {
	sub, err := s.result(learner)
	if err != nil {
		return exam.Answer{}, err
	}
	for _, a := range sub.Answers {
		if a.QuestionID == qid {
			return a, nil
		}
	}
	return exam.Answer{}, fmt.Errorf("no graded answer for %q", qid)
}

func (s *gradingState) questionEarned(qid, learner string, points int) error {
	a, err := s.gradedAnswer(learner, qid)
	if err != nil {
		return err
	}
	if a.PointsEarned == nil || *a.PointsEarned != points {
		return fmt.Errorf("question %q earned %v, want %d", qid, a.PointsEarned, points)
	}
	return nil
}

func (s *gradingState) exactlyOnce(n int) error {
	if s.wins != n {
		return fmt.Errorf("%d submissions succeeded, want %d (rejected %d)", s.wins, n, s.losses)
	}
	return nil
}

func (s *gradingState) storedCount(learner string, n int) error {
	list, err := s.f.svc.List(context.Background(), exam.SubmissionListOpts{ExamID: s.exam.ID, LearnerID: learner})
	if err != nil {
		return err
	}
	if len(list) != n {
		return fmt.Errorf("%d stored submissions, want %d", len(list), n)
	}
	return nil
}

func (s *gradingState) inProgress(learner string) error {
	sub, err := s.f.svc.Get(context.Background(), learner, s.exam.ID)
	if err != nil {
		return err
	}
	if sub.Status != exam.StatusInProgress {
		return fmt.Errorf("status %q", sub.Status)
	}
	return nil
}

func (s *gradingState) testStatus(n int, qid, learner, status string) error {
	a, err := s.gradedAnswer(learner, qid)
	if err != nil {
		return err
	}
	if n < 1 || n > len(a.TestResults) {
		return fmt.Errorf("no test %d in %d results", n, len(a.TestResults))
	}
	if got := a.TestResults[n-1].Status; string(got) != status {
		return fmt.Errorf("test %d status %q, want %q", n, got, status)
	}
	return nil
}

func (s *gradingState) view(role exam.Role) (string, error) {
	v, err := s.f.svc.ExamForTaking(context.Background(), "viewer", s.exam.ID, role)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(v)
	return string(data), err
}

func (s *gradingState) learnerViewLacks(secret string) error {
	body, err := s.view(exam.RoleLearner)
	if err != nil {
		return err
	}
	if strings.Contains(body, secret) {
		return fmt.Errorf("learner view contains %q", secret)
	}
	return nil
}

func (s *gradingState) staffViewHas(text string) error {
	body, err := s.view(exam.RoleTeacher)
	if err != nil {
		return err
	}
	if !strings.Contains(body, text) {
		return fmt.Errorf("staff view lacks %q", text)
	}
	return nil
}
