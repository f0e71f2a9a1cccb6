package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

const EventSubmissionGraded = "SubmissionGraded"

// Event is one row of the append-only audit log. Seq is assigned by the
// database and is only meaningful when reading back.
type Event struct {
	Seq       int64           `json:"seq"`
	SiteID    string          `json:"site_id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

// SubmissionGraded is the payload of EventSubmissionGraded.
type SubmissionGraded struct {
	SubmissionID     string `json:"submission_id"`
	ExamID           string `json:"exam_id"`
	LearnerID        string `json:"learner_id"`
	Score            int    `json:"score"`
	PercentageScore  int    `json:"percentage_score"`
	Passed           bool   `json:"passed"`
	TotalPoints      int    `json:"total_points"`
	TimeSpentSeconds int64  `json:"time_spent_seconds"`
}

func NewSubmissionGraded(p SubmissionGraded, at time.Time) (Event, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:      EventSubmissionGraded,
		Key:       p.ExamID + "/" + p.LearnerID,
		Data:      data,
		CreatedAt: at.Unix(),
	}, nil
}

type EventRepo struct {
	db     *sql.DB
	siteID string
}

func NewEventRepo(db *sql.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID}
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.SiteID == "" {
		e.SiteID = r.siteID
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, string(e.Data), e.CreatedAt)
	return err
}

// Since returns up to limit events with seq greater than after, oldest first.
func (r *EventRepo) Since(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log
		 WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var (
			e    Event
			data string
		)
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}
