package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	authmw "github.com/mind-engage/mindengage-assess/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/grading"
	"github.com/mind-engage/mindengage-assess/internal/sandbox"
	"github.com/mind-engage/mindengage-assess/internal/submission"
)

type echoExecutor struct{}

func (echoExecutor) Execute(_ context.Context, req sandbox.Request) (sandbox.Result, error) {
	return sandbox.Result{Stdout: req.Stdin, Status: sandbox.StatusOK}, nil
}

type testServer struct {
	srv  *httptest.Server
	auth *authmw.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	engine := grading.NewEngine(echoExecutor{}, grading.WithLogger(zerolog.Nop()))
	svc := submission.NewService(exam.NewInMemoryStore(), engine, submission.WithLogger(zerolog.Nop()))
	a := authmw.NewAuthService("test-secret")
	r := NewRouter(Deps{Service: svc, Auth: a, DevLogin: true, Logger: zerolog.Nop()})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, auth: a}
}

func (ts *testServer) do(t *testing.T, method, path, user, role, contentType, body string) (*http.Response, []byte) {
	t.Helper()
	req, _ := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != "" {
		tok, err := ts.auth.IssueJWT(user, role)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

const examYAML = `
id: demo
title: Demo
passing_score: 50
is_published: true
questions:
  - id: mc
    type: multiple_choice
    points: 5
    options: [A, B]
    correct_answer: A
  - id: echo
    type: code
    points: 20
    language: python
    solution: "print(input())  # KEY"
    test_cases:
      - {input: "1", expected_output: "1"}
      - {input: "2", expected_output: "2"}
      - {input: "HIDDEN", expected_output: "HIDDEN", is_hidden: true}
`

func (ts *testServer) seed(t *testing.T) {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/exams", "tom", "teacher", "application/yaml", examYAML)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: %d %s", resp.StatusCode, body)
	}
	var out struct {
		TotalPoints int `json:"total_points"`
	}
	_ = json.Unmarshal(body, &out)
	if out.TotalPoints != 25 {
		t.Fatalf("server-computed total = %d", out.TotalPoints)
	}
}

func TestUploadRequiresTeacher(t *testing.T) {
	ts := newTestServer(t)
	if resp, _ := ts.do(t, http.MethodPost, "/exams", "sue", "student", "application/yaml", examYAML); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("student upload: %d", resp.StatusCode)
	}
	if resp, _ := ts.do(t, http.MethodPost, "/exams", "", "", "application/yaml", examYAML); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous upload: %d", resp.StatusCode)
	}
	resp, body := ts.do(t, http.MethodPost, "/exams", "tom", "teacher", "application/json", `{"id":"x","title":"","questions":[]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid exam: %d %s", resp.StatusCode, body)
	}
}

func TestLearnerViewHidesSecrets(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)
	resp, body := ts.do(t, http.MethodGet, "/exams/demo", "sue", "student", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get exam: %d", resp.StatusCode)
	}
	for _, secret := range []string{"KEY", "HIDDEN", "correct_answer", "solution"} {
		if strings.Contains(string(body), secret) {
			t.Errorf("learner exam leaks %q: %s", secret, body)
		}
	}
	_, staff := ts.do(t, http.MethodGet, "/exams/demo", "tom", "teacher", "", "")
	if !strings.Contains(string(staff), "KEY") || !strings.Contains(string(staff), "HIDDEN") {
		t.Fatalf("teacher should see everything: %s", staff)
	}
	if resp, _ := ts.do(t, http.MethodGet, "/exams/nope", "sue", "student", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing exam: %d", resp.StatusCode)
	}
}

func TestSubmitFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	answers := `{"answers":[{"question_id":"mc","answer":"A"},{"question_id":"echo","answer":"print(input())"}]}`
	if resp, body := ts.do(t, http.MethodPut, "/exams/demo/submission", "sue", "student", "application/json", answers); resp.StatusCode != http.StatusOK {
		t.Fatalf("autosave: %d %s", resp.StatusCode, body)
	}
	if resp, _ := ts.do(t, http.MethodGet, "/exams/demo/review", "sue", "student", "", ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("review before grading: %d", resp.StatusCode)
	}

	resp, body := ts.do(t, http.MethodPost, "/exams/demo/submit", "sue", "student", "application/json", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", resp.StatusCode, body)
	}
	var res submitResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if res.Score != 25 || res.PercentageScore != 100 || !res.Passed || res.SubmittedAt == nil {
		t.Fatalf("unexpected result %+v", res)
	}

	if resp, _ := ts.do(t, http.MethodPost, "/exams/demo/submit", "sue", "student", "application/json", answers); resp.StatusCode != http.StatusConflict {
		t.Fatalf("resubmit: %d", resp.StatusCode)
	}
	if resp, _ := ts.do(t, http.MethodPut, "/exams/demo/submission", "sue", "student", "application/json", answers); resp.StatusCode != http.StatusConflict {
		t.Fatalf("autosave after submit: %d", resp.StatusCode)
	}

	resp, body = ts.do(t, http.MethodGet, "/exams/demo/review", "sue", "student", "", "")
	if resp.StatusCode != http.StatusOK || strings.Contains(string(body), "KEY") || strings.Contains(string(body), `"actual_output":"HIDDEN"`) {
		t.Fatalf("review: %d %s", resp.StatusCode, body)
	}

	if resp, body := ts.do(t, http.MethodPost, "/exams", "tom", "teacher", "application/yaml", examYAML); resp.StatusCode != http.StatusConflict {
		t.Fatalf("replacing an exam with submissions: %d %s", resp.StatusCode, body)
	}
}

func TestConcurrentSubmitOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)
	answers := `{"answers":[{"question_id":"mc","answer":"B"}]}`

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[int]int{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, _ := ts.do(t, http.MethodPost, "/exams/demo/submit", "ray", "student", "application/json", answers)
			mu.Lock()
			codes[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if codes[http.StatusOK] != 1 || codes[http.StatusConflict] != 7 {
		t.Fatalf("status counts %v", codes)
	}
}

func TestListSubmissionsScoping(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)
	for _, who := range []string{"ann", "ben"} {
		if resp, _ := ts.do(t, http.MethodPost, "/exams/demo/submit", who, "student", "application/json", `{"answers":[]}`); resp.StatusCode != 200 {
			t.Fatalf("submit %s: %d", who, resp.StatusCode)
		}
	}
	var list []exam.Submission
	_, body := ts.do(t, http.MethodGet, "/submissions?learner_id=ben", "ann", "student", "", "")
	_ = json.Unmarshal(body, &list)
	if len(list) != 1 || list[0].LearnerID != "ann" {
		t.Fatalf("learner must only see own submissions: %s", body)
	}
	_, body = ts.do(t, http.MethodGet, "/submissions?exam_id=demo", "tom", "teacher", "", "")
	list = nil
	_ = json.Unmarshal(body, &list)
	if len(list) != 2 {
		t.Fatalf("teacher list: %s", body)
	}
}

func TestDevLoginAndHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodPost, "/auth/login", "", "", "application/json", `{"username":"sue","password":"sue","role":"student"}`)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "access_token") {
		t.Fatalf("login: %d %s", resp.StatusCode, body)
	}
	if resp, _ := ts.do(t, http.MethodGet, "/healthz", "", "", "", ""); resp.StatusCode != 200 {
		t.Fatalf("healthz %d", resp.StatusCode)
	}
	if resp, _ := ts.do(t, http.MethodGet, "/readyz", "", "", "", ""); resp.StatusCode != 200 {
		t.Fatalf("readyz %d", resp.StatusCode)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := map[error]int{
		exam.ErrAlreadySubmitted:   http.StatusConflict,
		exam.ErrNotGraded:          http.StatusConflict,
		exam.ErrExamNotFound:       http.StatusNotFound,
		exam.ErrSubmissionNotFound: http.StatusNotFound,
		exam.ErrInvalidExam:        http.StatusBadRequest,
		exam.ErrExamLocked:         http.StatusConflict,
		context.DeadlineExceeded:   http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Errorf("%v: got %d want %d", err, got, want)
		}
	}
}
