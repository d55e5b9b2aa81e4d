package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"hookrelay/internal/platform/models"
)

const eventColumns = `id, webhook_id, method, url, path, headers, query, body, raw_body, content_type, client_ip,
	user_agent, signature, status, forwarding, is_replay, original_request_id, replay_count, created_at, updated_at`

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// EventFilter narrows a listing. Zero values mean no restriction.
type EventFilter struct {
	Status string
	Limit  int
	Offset int
}

func (r *EventRepository) Create(ctx context.Context, event *models.WebhookEvent) error {
	if event.ID == "" {
		event.ID = "req_" + uuid.New().String()
	}
	now := time.Now().UnixMilli()
	if event.CreatedAt == 0 {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	if event.Status == "" {
		event.Status = models.EventStatusReceived
	}

	headers, err := toJSON(event.Headers)
	if err != nil {
		return err
	}
	query, err := toJSON(event.Query)
	if err != nil {
		return err
	}
	body, err := toJSON(event.Body)
	if err != nil {
		return err
	}
	var forwarding sql.NullString
	if event.Forwarding != nil {
		s, err := toJSON(event.Forwarding)
		if err != nil {
			return err
		}
		forwarding = sql.NullString{String: s, Valid: true}
	}
	var original sql.NullString
	if event.OriginalRequestID != "" {
		original = sql.NullString{String: event.OriginalRequestID, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (id, webhook_id, method, url, path, headers, query, body, raw_body, content_type,
			client_ip, user_agent, signature, status, forwarding, is_replay, original_request_id, replay_count,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.WebhookID, event.Method, event.URL, event.Path, headers, query, body, event.RawBody,
		event.ContentType, event.ClientIP, event.UserAgent, event.Signature, event.Status, forwarding,
		event.IsReplay, original, event.ReplayCount, event.CreatedAt, event.UpdatedAt)
	return err
}

func scanEvent(row scanner) (*models.WebhookEvent, error) {
	var e models.WebhookEvent
	var headers, query, body, signature, forwarding, original sql.NullString

	err := row.Scan(&e.ID, &e.WebhookID, &e.Method, &e.URL, &e.Path, &headers, &query, &body, &e.RawBody,
		&e.ContentType, &e.ClientIP, &e.UserAgent, &signature, &e.Status, &forwarding, &e.IsReplay,
		&original, &e.ReplayCount, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.Signature = signature.String
	e.OriginalRequestID = original.String

	if err := fromJSON("headers", headers, &e.Headers); err != nil {
		return nil, err
	}
	if err := fromJSON("query", query, &e.Query); err != nil {
		return nil, err
	}
	if body.Valid && body.String != "" {
		if err := json.Unmarshal([]byte(body.String), &e.Body); err != nil {
			return nil, err
		}
	}
	if forwarding.Valid && forwarding.String != "" {
		e.Forwarding = &models.ForwardingResult{}
		if err := fromJSON("forwarding", forwarding, e.Forwarding); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.WebhookEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM webhook_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// ListByWebhook returns events newest first along with the total matching count.
func (r *EventRepository) ListByWebhook(ctx context.Context, webhookID string, filter EventFilter) ([]*models.WebhookEvent, int, error) {
	where := `WHERE webhook_id = ?`
	args := []interface{}{webhookID}
	if filter.Status != "" {
		where += ` AND status = ?`
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_events `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + eventColumns + ` FROM webhook_events ` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []*models.WebhookEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// UpdateForwarding stores a dispatch outcome. The status column only moves
// away from "received"; terminal states are never rewritten.
func (r *EventRepository) UpdateForwarding(ctx context.Context, id, status string, result *models.ForwardingResult) error {
	forwarding, err := toJSON(result)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET forwarding = ?,
			status = CASE WHEN status = ? THEN ? ELSE status END,
			updated_at = ?
		WHERE id = ?
	`, forwarding, models.EventStatusReceived, status, time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// CountByStatus groups a webhook's events by status.
func (r *EventRepository) CountByStatus(ctx context.Context, webhookID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM webhook_events WHERE webhook_id = ? GROUP BY status`, webhookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// DeleteOlderThan removes a webhook's events created before cutoff (unix millis).
func (r *EventRepository) DeleteOlderThan(ctx context.Context, webhookID string, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE webhook_id = ? AND created_at < ?`, webhookID, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TrimToNewest keeps only the newest keep events of a webhook.
func (r *EventRepository) TrimToNewest(ctx context.Context, webhookID string, keep int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM webhook_events
		WHERE webhook_id = ? AND id NOT IN (
			SELECT id FROM webhook_events WHERE webhook_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		)
	`, webhookID, webhookID, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
