package analytics

import (
	"context"
	"database/sql"
	"time"
)

// EventSummary is a body-less view of an event for dashboards.
type EventSummary struct {
	ID         string `json:"id"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Status     string `json:"status"`
	IsReplay   bool   `json:"is_replay"`
	StatusCode int    `json:"status_code,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

type DailyStat struct {
	Date      string `json:"date"`
	Requests  int    `json:"requests"`
	Forwarded int    `json:"forwarded"`
	Failed    int    `json:"failed"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) RecentEvents(ctx context.Context, webhookID string, limit int) ([]EventSummary, error) {
	query := `
		SELECT id, method, path, status, is_replay,
			COALESCE(json_extract(forwarding, '$.status_code'), 0),
			COALESCE(json_extract(forwarding, '$.duration_ms'), 0),
			created_at
		FROM webhook_events
		WHERE webhook_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, webhookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []EventSummary{}
	for rows.Next() {
		var e EventSummary
		if err := rows.Scan(&e.ID, &e.Method, &e.Path, &e.Status, &e.IsReplay, &e.StatusCode, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// DailyCounts buckets a webhook's events by UTC day, newest first, for days on or after since.
func (r *Repository) DailyCounts(ctx context.Context, webhookID string, since time.Time) ([]DailyStat, error) {
	query := `
		SELECT strftime('%Y-%m-%d', created_at / 1000, 'unixepoch') AS day,
			COUNT(*),
			SUM(CASE WHEN status = 'forwarded' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END)
		FROM webhook_events
		WHERE webhook_id = ? AND created_at >= ?
		GROUP BY day
		ORDER BY day DESC
	`
	rows, err := r.db.QueryContext(ctx, query, webhookID, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []DailyStat{}
	for rows.Next() {
		var s DailyStat
		if err := rows.Scan(&s.Date, &s.Requests, &s.Forwarded, &s.Failed); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
