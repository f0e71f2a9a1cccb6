package exam_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/exam"
)

type storeFactory func(t *testing.T) exam.Store

func sqliteStore(t *testing.T) exam.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", name)
	conn, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return exam.NewSQLStore(conn, string(db.DriverSQLite))
}

func memoryStore(*testing.T) exam.Store { return exam.NewInMemoryStore() }

func forEachStore(t *testing.T, fn func(t *testing.T, st exam.Store)) {
	for name, f := range map[string]storeFactory{"memory": memoryStore, "sqlite": sqliteStore} {
		f := f
		t.Run(name, func(t *testing.T) { fn(t, f(t)) })
	}
}

func seedExam(t *testing.T, st exam.Store) exam.Exam {
	t.Helper()
	e := exam.Exam{
		ID: "e1", Title: "Go quiz", PassingScore: 50, IsPublished: true,
		Questions: []exam.Question{
			{ID: "q1", Points: 4, Body: exam.ShortAnswer{CorrectAnswer: "goroutine"}},
			{ID: "q2", Points: 6, Body: exam.Code{Language: "go", TestCases: []exam.TestCase{
				{Input: "1", ExpectedOutput: "1"},
				{Input: "2", ExpectedOutput: "2", IsHidden: true},
			}}},
		},
	}
	if err := st.PutExam(context.Background(), e); err != nil {
		t.Fatalf("put exam: %v", err)
	}
	return e
}

func TestStore_ExamRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, st exam.Store) {
		ctx := context.Background()
		seedExam(t, st)
		got, err := st.GetExam(ctx, "e1")
		if err != nil {
			t.Fatal(err)
		}
		if got.TotalPoints != 10 || len(got.Questions) != 2 {
			t.Fatalf("unexpected exam %+v", got)
		}
		if code, ok := got.Questions[1].Body.(exam.Code); !ok || !code.TestCases[1].IsHidden {
			t.Fatalf("hidden test lost: %+v", got.Questions[1])
		}
		if _, err := st.GetExam(ctx, "nope"); !errors.Is(err, exam.ErrExamNotFound) {
			t.Fatalf("want ErrExamNotFound, got %v", err)
		}

		list, err := st.ListExams(ctx, exam.ListOpts{Q: "go", PublishedOnly: true})
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 || list[0].QuestionCount != 2 {
			t.Fatalf("unexpected list %+v", list)
		}
	})
}

func TestStore_ExamFrozenOnceSubmissionsExist(t *testing.T) {
	forEachStore(t, func(t *testing.T, st exam.Store) {
		ctx := context.Background()
		e := seedExam(t, st)

		e.Title = "Go quiz v2"
		if err := st.PutExam(ctx, e); err != nil {
			t.Fatalf("replace before any submission: %v", err)
		}
		if _, err := st.SaveDraft(ctx, "e1", "bob", nil, time.Now()); err != nil {
			t.Fatal(err)
		}

		e.Questions[0].Points = 70
		if err := st.PutExam(ctx, e); !errors.Is(err, exam.ErrExamLocked) {
			t.Fatalf("want ErrExamLocked, got %v", err)
		}
		got, err := st.GetExam(ctx, "e1")
		if err != nil {
			t.Fatal(err)
		}
		if got.TotalPoints != 10 || got.Questions[0].Points != 4 || got.Title != "Go quiz v2" {
			t.Fatalf("locked exam changed: total=%d points=%d title=%q", got.TotalPoints, got.Questions[0].Points, got.Title)
		}
	})
}

func TestStore_DraftIsIdempotentAndKeepsIdentity(t *testing.T) {
	forEachStore(t, func(t *testing.T, st exam.Store) {
		ctx := context.Background()
		seedExam(t, st)
		t0 := time.Unix(1_700_000_000, 0)
		answers := []exam.Answer{{QuestionID: "q1", Answer: "thread"}}

		first, err := st.SaveDraft(ctx, "e1", "alice", answers, t0)
		if err != nil {
			t.Fatal(err)
		}
		second, err := st.SaveDraft(ctx, "e1", "alice", []exam.Answer{{QuestionID: "q1", Answer: "goroutine"}}, t0.Add(time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		if first.ID != second.ID || !second.StartedAt.Equal(t0) {
			t.Fatalf("draft identity changed: %+v vs %+v", first, second)
		}
		if second.Status != exam.StatusInProgress || second.Answers[0].Answer != "goroutine" {
			t.Fatalf("draft not replaced: %+v", second)
		}

		all, _ := st.ListSubmissions(ctx, exam.SubmissionListOpts{ExamID: "e1"})
		if len(all) != 1 {
			t.Fatalf("want exactly one submission, got %d", len(all))
		}
		if _, err := st.SaveDraft(ctx, "missing", "alice", nil, t0); !errors.Is(err, exam.ErrExamNotFound) {
			t.Fatalf("want ErrExamNotFound, got %v", err)
		}
	})
}

func TestStore_FinalizeIsConditional(t *testing.T) {
	forEachStore(t, func(t *testing.T, st exam.Store) {
		ctx := context.Background()
		seedExam(t, st)
		now := time.Unix(1_700_000_100, 0)
		draft, err := st.SaveDraft(ctx, "e1", "bob", []exam.Answer{{QuestionID: "q1", Answer: "goroutine"}}, now)
		if err != nil {
			t.Fatal(err)
		}

		pts := 4
		fin := draft
		fin.SubmittedAt = &now
		fin.UpdatedAt = now
		fin.Score, fin.PercentageScore, fin.Passed, fin.TotalPoints = 4, 40, false, 10
		fin.Answers[0].PointsEarned = &pts
		got, err := st.FinalizeSubmission(ctx, fin)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Graded() || got.ID != draft.ID || got.Score != 4 || got.SubmittedAt == nil {
			t.Fatalf("unexpected graded submission %+v", got)
		}

		again := fin
		again.Score = 10
		if _, err := st.FinalizeSubmission(ctx, again); !errors.Is(err, exam.ErrAlreadySubmitted) {
			t.Fatalf("second finalize: want ErrAlreadySubmitted, got %v", err)
		}
		if _, err := st.SaveDraft(ctx, "e1", "bob", nil, now); !errors.Is(err, exam.ErrAlreadySubmitted) {
			t.Fatalf("draft after grading: want ErrAlreadySubmitted, got %v", err)
		}
		stored, err := st.GetSubmission(ctx, "e1", "bob")
		if err != nil {
			t.Fatal(err)
		}
		if stored.Score != 4 || *stored.Answers[0].PointsEarned != 4 {
			t.Fatalf("graded record was overwritten: %+v", stored)
		}
	})
}

func TestStore_ConcurrentFinalizeHasOneWinner(t *testing.T) {
	forEachStore(t, func(t *testing.T, st exam.Store) {
		ctx := context.Background()
		seedExam(t, st)
		now := time.Unix(1_700_000_200, 0)

		const racers = 8
		var wins, losses int32
		var wg sync.WaitGroup
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(score int) {
				defer wg.Done()
				_, err := st.FinalizeSubmission(ctx, exam.Submission{
					ExamID: "e1", LearnerID: "carol", StartedAt: now, UpdatedAt: now,
					SubmittedAt: &now, Score: score, TotalPoints: 10, Answers: []exam.Answer{},
				})
				switch {
				case err == nil:
					atomic.AddInt32(&wins, 1)
				case errors.Is(err, exam.ErrAlreadySubmitted):
					atomic.AddInt32(&losses, 1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		if wins != 1 || losses != racers-1 {
			t.Fatalf("wins=%d losses=%d", wins, losses)
		}
	})
}

func TestStore_ListSubmissionsFilters(t *testing.T) {
	forEachStore(t, func(t *testing.T, st exam.Store) {
		ctx := context.Background()
		seedExam(t, st)
		now := time.Unix(1_700_000_300, 0)
		for _, who := range []string{"dan", "erin", "frank"} {
			if _, err := st.SaveDraft(ctx, "e1", who, nil, now); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := st.FinalizeSubmission(ctx, exam.Submission{ExamID: "e1", LearnerID: "erin", StartedAt: now, UpdatedAt: now}); err != nil {
			t.Fatal(err)
		}
		graded, err := st.ListSubmissions(ctx, exam.SubmissionListOpts{Status: exam.StatusGraded})
		if err != nil {
			t.Fatal(err)
		}
		if len(graded) != 1 || graded[0].LearnerID != "erin" {
			t.Fatalf("unexpected graded list %+v", graded)
		}
		mine, _ := st.ListSubmissions(ctx, exam.SubmissionListOpts{LearnerID: "dan"})
		if len(mine) != 1 || mine[0].Answers == nil {
			t.Fatalf("unexpected learner list %+v", mine)
		}
		paged, _ := st.ListSubmissions(ctx, exam.SubmissionListOpts{ExamID: "e1", Limit: 2})
		if len(paged) != 2 {
			t.Fatalf("limit ignored: %d", len(paged))
		}
	})
}
