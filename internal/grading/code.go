package grading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/sandbox"
)

// languageChecker is implemented by executors that can reject a language
// before any test runs (*sandbox.Client does).
type languageChecker interface {
	Supports(language string) bool
}

// GradeCode runs source against every test case of q, visible and hidden
// alike, with at most MaxConcurrency sandbox calls in flight. It returns
// only after every test case has a result.
func (g *Engine) GradeCode(ctx context.Context, q exam.Question, source, language string) Outcome {
	out := Outcome{MaxPoints: q.Points}
	body, ok := q.Body.(exam.Code)
	if !ok {
		out.Err = fmt.Errorf("question %q is %s, not code", q.ID, q.Type())
		return out
	}
	if lc, ok := g.sandbox.(languageChecker); ok && !lc.Supports(language) {
		out.Err = fmt.Errorf("%w: %q", sandbox.ErrUnsupportedLanguage, language)
		return out
	}

	results := make([]exam.TestResult, len(body.TestCases))
	errs := make([]error, len(body.TestCases))
	var eg errgroup.Group
	eg.SetLimit(g.cfg.MaxConcurrency)
	for i, tc := range body.TestCases {
		i, tc := i, tc
		eg.Go(func() error {
			results[i], errs[i] = g.runTest(ctx, q.ID, source, language, i, tc)
			return nil
		})
	}
	_ = eg.Wait()

	for _, err := range errs {
		if errors.Is(err, sandbox.ErrUnsupportedLanguage) {
			out.Err = err
			return out
		}
	}

	out.TestResults = results
	out.IsCorrect = len(results) > 0
	for _, r := range results {
		if !r.Passed {
			out.IsCorrect = false
			break
		}
	}
	out.PointsEarned = g.codePoints(q, body, results, out.IsCorrect)
	return out
}

func (g *Engine) codePoints(q exam.Question, body exam.Code, results []exam.TestResult, allPassed bool) int {
	if g.cfg.Policy == PolicyWeighted && body.Weighted() {
		earned := 0
		for i, r := range results {
			if r.Passed {
				earned += body.TestCases[i].Points
			}
		}
		if earned > q.Points {
			earned = q.Points
		}
		return earned
	}
	if allPassed {
		return q.Points
	}
	return 0
}

// runTest executes one test case. A sandbox outage is retried up to
// MaxRetries times and then recorded as a failed test; only an unsupported
// language is returned as an error.
func (g *Engine) runTest(ctx context.Context, questionID, source, language string, i int, tc exam.TestCase) (exam.TestResult, error) {
	r := exam.TestResult{TestCaseID: exam.TestCaseID(tc, i), Hidden: tc.IsHidden}
	if g.sandbox == nil {
		r.Status = exam.TestSandboxUnavailable
		r.ErrorOutput = sandbox.ErrSandboxUnavailable.Error()
		return r, nil
	}

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(attempt)*g.cfg.RetryBackoff); err != nil {
				lastErr = err
				break
			}
		}
		res, err := g.execute(ctx, sandbox.Request{SourceCode: source, Language: language, Stdin: tc.Input})
		switch {
		case err == nil:
			return judge(r, tc, res), nil
		case errors.Is(err, sandbox.ErrUnsupportedLanguage):
			return r, err
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			r.Status = exam.TestTimeLimit
			r.ErrorOutput = fmt.Sprintf("no result within %s", g.cfg.TestTimeout)
			g.cfg.Logger.Warn().Str("question_id", questionID).Str("test_case", r.TestCaseID).
				Dur("timeout", g.cfg.TestTimeout).Msg("test case timed out")
			return r, nil
		case ctx.Err() != nil:
			lastErr = ctx.Err()
		default:
			lastErr = err
			g.cfg.Logger.Warn().Err(err).Str("question_id", questionID).Str("test_case", r.TestCaseID).
				Int("attempt", attempt+1).Msg("sandbox call failed")
			continue
		}
		break
	}
	r.Status = exam.TestSandboxUnavailable
	if lastErr != nil {
		r.ErrorOutput = lastErr.Error()
	}
	return r, nil
}

// execute bounds one sandbox call by TestTimeout even if the executor does
// not honour its context.
func (g *Engine) execute(ctx context.Context, req sandbox.Request) (sandbox.Result, error) {
	tctx, cancel := context.WithTimeout(ctx, g.cfg.TestTimeout)
	defer cancel()

	type reply struct {
		res sandbox.Result
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		res, err := g.sandbox.Execute(tctx, req)
		ch <- reply{res, err}
	}()
	select {
	case rep := <-ch:
		if rep.err != nil && tctx.Err() != nil && !errors.Is(rep.err, sandbox.ErrUnsupportedLanguage) {
			return sandbox.Result{}, tctx.Err()
		}
		return rep.res, rep.err
	case <-tctx.Done():
		return sandbox.Result{}, tctx.Err()
	}
}

func judge(r exam.TestResult, tc exam.TestCase, res sandbox.Result) exam.TestResult {
	r.ActualOutput = res.Stdout
	r.TimeMs = res.TimeMs
	r.MemoryKB = res.MemoryKB
	switch res.Status {
	case sandbox.StatusCompileError:
		r.Status = exam.TestCompileError
		r.ErrorOutput = res.CompileOutput
	case sandbox.StatusRuntimeError:
		r.Status = exam.TestRuntimeError
		r.ErrorOutput = res.Stderr
	case sandbox.StatusTimeLimit:
		r.Status = exam.TestTimeLimit
		r.ErrorOutput = res.Stderr
	default:
		if strings.TrimSpace(res.Stdout) == strings.TrimSpace(tc.ExpectedOutput) {
			r.Passed = true
			r.Status = exam.TestOK
		} else {
			r.Status = exam.TestWrongAnswer
		}
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
