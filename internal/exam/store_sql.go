package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// PutExam inserts e or replaces the stored exam with the same id. Once any
// submission references the exam it is frozen and ErrExamLocked is returned.
func (s *SQLStore) PutExam(ctx context.Context, e Exam) error {
	qj, err := json.Marshal(e.Questions)
	if err != nil {
		return err
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO exams
		(id,title,author_id,duration_minutes,passing_score,total_points,is_published,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, author_id=EXCLUDED.author_id,
			duration_minutes=EXCLUDED.duration_minutes, passing_score=EXCLUDED.passing_score,
			total_points=EXCLUDED.total_points, is_published=EXCLUDED.is_published,
			questions_json=EXCLUDED.questions_json
		WHERE NOT EXISTS (SELECT 1 FROM submissions WHERE submissions.exam_id = exams.id)`,
		e.ID, e.Title, e.AuthorID, e.DurationMinutes, e.PassingScore, e.SumPoints(), e.IsPublished,
		string(qj), created.Unix())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrExamLocked, e.ID)
	}
	return nil
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,title,author_id,duration_minutes,passing_score,total_points,
		is_published,questions_json,created_at FROM exams WHERE id=$1`, id)
	var (
		e       Exam
		qjson   string
		created int64
	)
	if err := row.Scan(&e.ID, &e.Title, &e.AuthorID, &e.DurationMinutes, &e.PassingScore, &e.TotalPoints,
		&e.IsPublished, &qjson, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Exam{}, ErrExamNotFound
		}
		return Exam{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &e.Questions); err != nil {
		return Exam{}, fmt.Errorf("decode questions of exam %s: %w", id, err)
	}
	e.CreatedAt = time.Unix(created, 0)
	return e, nil
}

func (s *SQLStore) ListExams(ctx context.Context, opts ListOpts) ([]ExamSummary, error) {
	var (
		where []string
		args  []any
	)
	if opts.PublishedOnly {
		args = append(args, true)
		where = append(where, fmt.Sprintf("is_published=$%d", len(args)))
	}
	if q := strings.TrimSpace(opts.Q); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		where = append(where, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)))
	}
	query := `SELECT id,title,duration_minutes,passing_score,total_points,is_published,questions_json,created_at FROM exams`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	query, args = paginate(query, args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ExamSummary{}
	for rows.Next() {
		var (
			es      ExamSummary
			qjson   string
			created int64
		)
		if err := rows.Scan(&es.ID, &es.Title, &es.DurationMinutes, &es.PassingScore, &es.TotalPoints,
			&es.IsPublished, &qjson, &created); err != nil {
			return nil, err
		}
		var qs []json.RawMessage
		if err := json.Unmarshal([]byte(qjson), &qs); err == nil {
			es.QuestionCount = len(qs)
		}
		es.CreatedAt = time.Unix(created, 0)
		out = append(out, es)
	}
	return out, rows.Err()
}

const submissionCols = `id,exam_id,learner_id,status,answers_json,started_at,submitted_at,updated_at,
	time_spent_seconds,score,percentage_score,passed,total_points`

func (s *SQLStore) GetSubmission(ctx context.Context, examID, learnerID string) (Submission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+submissionCols+` FROM submissions
		WHERE exam_id=$1 AND learner_id=$2`, examID, learnerID)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, ErrSubmissionNotFound
	}
	return sub, err
}

func (s *SQLStore) SaveDraft(ctx context.Context, examID, learnerID string, answers []Answer, now time.Time) (Submission, error) {
	aj, err := json.Marshal(cloneAnswers(answers))
	if err != nil {
		return Submission{}, err
	}
	// The WHERE clause on the conflict branch is the guard against writing
	// into a graded submission.
	res, err := s.db.ExecContext(ctx, `INSERT INTO submissions
		(id,exam_id,learner_id,status,answers_json,started_at,updated_at,time_spent_seconds,score,percentage_score,passed,total_points)
		VALUES ($1,$2,$3,$4,$5,$6,$6,0,0,0,$7,0)
		ON CONFLICT (exam_id,learner_id) DO UPDATE SET answers_json=EXCLUDED.answers_json, updated_at=EXCLUDED.updated_at
		WHERE submissions.status <> $8`,
		uuid.NewString(), examID, learnerID, string(StatusInProgress), string(aj), now.Unix(), false, string(StatusGraded))
	if err != nil {
		if isForeignKeyViolation(err) {
			return Submission{}, ErrExamNotFound
		}
		return Submission{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Submission{}, ErrAlreadySubmitted
	}
	return s.GetSubmission(ctx, examID, learnerID)
}

func (s *SQLStore) FinalizeSubmission(ctx context.Context, sub Submission) (Submission, error) {
	aj, err := json.Marshal(cloneAnswers(sub.Answers))
	if err != nil {
		return Submission{}, err
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	var submittedAt sql.NullInt64
	if sub.SubmittedAt != nil {
		submittedAt = sql.NullInt64{Int64: sub.SubmittedAt.Unix(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO submissions (`+submissionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (exam_id,learner_id) DO UPDATE SET status=EXCLUDED.status, answers_json=EXCLUDED.answers_json,
			started_at=EXCLUDED.started_at, submitted_at=EXCLUDED.submitted_at, updated_at=EXCLUDED.updated_at,
			time_spent_seconds=EXCLUDED.time_spent_seconds, score=EXCLUDED.score,
			percentage_score=EXCLUDED.percentage_score, passed=EXCLUDED.passed, total_points=EXCLUDED.total_points
		WHERE submissions.status <> $4`,
		sub.ID, sub.ExamID, sub.LearnerID, string(StatusGraded), string(aj), sub.StartedAt.Unix(), submittedAt,
		sub.UpdatedAt.Unix(), sub.TimeSpentSeconds, sub.Score, sub.PercentageScore, sub.Passed, sub.TotalPoints)
	if err != nil {
		if isForeignKeyViolation(err) {
			return Submission{}, ErrExamNotFound
		}
		return Submission{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Submission{}, err
	}
	if n == 0 {
		return Submission{}, ErrAlreadySubmitted
	}
	return s.GetSubmission(ctx, sub.ExamID, sub.LearnerID)
}

func (s *SQLStore) ListSubmissions(ctx context.Context, opts SubmissionListOpts) ([]Submission, error) {
	var (
		where []string
		args  []any
	)
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	add("exam_id", opts.ExamID)
	add("learner_id", opts.LearnerID)
	add("status", string(opts.Status))

	query := `SELECT ` + submissionCols + ` FROM submissions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	query, args = paginate(query, args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (Submission, error) {
	var (
		sub              Submission
		status, ajson    string
		started, updated int64
		submitted        sql.NullInt64
	)
	if err := row.Scan(&sub.ID, &sub.ExamID, &sub.LearnerID, &status, &ajson, &started, &submitted, &updated,
		&sub.TimeSpentSeconds, &sub.Score, &sub.PercentageScore, &sub.Passed, &sub.TotalPoints); err != nil {
		return Submission{}, err
	}
	sub.Status = Status(status)
	sub.StartedAt = time.Unix(started, 0)
	sub.UpdatedAt = time.Unix(updated, 0)
	if submitted.Valid {
		t := time.Unix(submitted.Int64, 0)
		sub.SubmittedAt = &t
	}
	if err := json.Unmarshal([]byte(ajson), &sub.Answers); err != nil {
		return Submission{}, fmt.Errorf("decode answers of submission %s: %w", sub.ID, err)
	}
	if sub.Answers == nil {
		sub.Answers = []Answer{}
	}
	return sub, nil
}

func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if offset > 0 {
			args = append(args, offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}
	return query, args
}

func isForeignKeyViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key constraint") || // sqlite
		strings.Contains(msg, "violates foreign key") // postgres
}
