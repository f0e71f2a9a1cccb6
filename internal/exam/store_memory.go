package exam

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu          sync.RWMutex
	exams       map[string]Exam
	submissions map[string]Submission // key: examID|learnerID
}

func NewInMemoryStore() Store {
	return &memoryStore{
		exams:       map[string]Exam{},
		submissions: map[string]Submission{},
	}
}

func subKey(examID, learnerID string) string { return examID + "|" + learnerID }

func (m *memoryStore) PutExam(_ context.Context, e Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[e.ID]; ok {
		for _, s := range m.submissions {
			if s.ExamID == e.ID {
				return fmt.Errorf("%w: %s", ErrExamLocked, e.ID)
			}
		}
	}
	e.Questions = append([]Question(nil), e.Questions...)
	e.TotalPoints = e.SumPoints()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.exams[e.ID] = e
	return nil
}

func (m *memoryStore) GetExam(_ context.Context, id string) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return Exam{}, ErrExamNotFound
	}
	e.Questions = append([]Question(nil), e.Questions...)
	return e, nil
}

func (m *memoryStore) ListExams(_ context.Context, opts ListOpts) ([]ExamSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(opts.Q))
	out := make([]ExamSummary, 0, len(m.exams))
	for _, e := range m.exams {
		if opts.PublishedOnly && !e.IsPublished {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(e.Title), q) {
			continue
		}
		out = append(out, summarize(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func (m *memoryStore) GetSubmission(_ context.Context, examID, learnerID string) (Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.submissions[subKey(examID, learnerID)]
	if !ok {
		return Submission{}, ErrSubmissionNotFound
	}
	return cloneSubmission(s), nil
}

func (m *memoryStore) SaveDraft(_ context.Context, examID, learnerID string, answers []Answer, now time.Time) (Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[examID]; !ok {
		return Submission{}, ErrExamNotFound
	}
	k := subKey(examID, learnerID)
	s, ok := m.submissions[k]
	switch {
	case !ok:
		s = Submission{
			ID:        uuid.NewString(),
			ExamID:    examID,
			LearnerID: learnerID,
			Status:    StatusInProgress,
			StartedAt: now,
		}
	case s.Graded():
		return Submission{}, ErrAlreadySubmitted
	}
	s.Answers = cloneAnswers(answers)
	s.UpdatedAt = now
	m.submissions[k] = s
	return cloneSubmission(s), nil
}

func (m *memoryStore) FinalizeSubmission(_ context.Context, s Submission) (Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := subKey(s.ExamID, s.LearnerID)
	cur, ok := m.submissions[k]
	if ok && cur.Graded() {
		return Submission{}, ErrAlreadySubmitted
	}
	if ok {
		s.ID = cur.ID
	} else if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Status = StatusGraded
	s = cloneSubmission(s)
	m.submissions[k] = s
	return cloneSubmission(s), nil
}

func (m *memoryStore) ListSubmissions(_ context.Context, opts SubmissionListOpts) ([]Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Submission, 0)
	for _, s := range m.submissions {
		if opts.ExamID != "" && s.ExamID != opts.ExamID {
			continue
		}
		if opts.LearnerID != "" && s.LearnerID != opts.LearnerID {
			continue
		}
		if opts.Status != "" && s.Status != opts.Status {
			continue
		}
		out = append(out, cloneSubmission(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func summarize(e Exam) ExamSummary {
	return ExamSummary{
		ID:              e.ID,
		Title:           e.Title,
		QuestionCount:   len(e.Questions),
		DurationMinutes: e.DurationMinutes,
		PassingScore:    e.PassingScore,
		TotalPoints:     e.TotalPoints,
		IsPublished:     e.IsPublished,
		CreatedAt:       e.CreatedAt,
	}
}

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func cloneSubmission(s Submission) Submission {
	s.Answers = cloneAnswers(s.Answers)
	if s.SubmittedAt != nil {
		t := *s.SubmittedAt
		s.SubmittedAt = &t
	}
	return s
}

func cloneAnswers(in []Answer) []Answer {
	if in == nil {
		return []Answer{}
	}
	out := make([]Answer, len(in))
	for i, a := range in {
		if a.IsCorrect != nil {
			v := *a.IsCorrect
			a.IsCorrect = &v
		}
		if a.PointsEarned != nil {
			v := *a.PointsEarned
			a.PointsEarned = &v
		}
		a.TestResults = append([]TestResult(nil), a.TestResults...)
		out[i] = a
	}
	return out
}
