package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"hookrelay/internal/platform/models"
)

const webhookColumns = `id, webhook_id, user_id, name, description, status, forwarding, security, filters, rules,
	transformation, notifications, retention, total_requests, successful_forwards, failed_forwards,
	last_request_at, expires_at, created_at, updated_at`

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

type webhookJSON struct {
	forwarding, security, filters, rules, transformation, notifications, retention string
}

func encodeWebhook(w *models.Webhook) (*webhookJSON, error) {
	var (
		out webhookJSON
		err error
	)
	if out.forwarding, err = toJSON(w.Forwarding); err != nil {
		return nil, err
	}
	if out.security, err = toJSON(w.Security); err != nil {
		return nil, err
	}
	if out.filters, err = toJSON(w.Filters); err != nil {
		return nil, err
	}
	rules := w.Rules
	if rules == nil {
		rules = []models.Rule{}
	}
	if out.rules, err = toJSON(rules); err != nil {
		return nil, err
	}
	if out.transformation, err = toJSON(w.Transformation); err != nil {
		return nil, err
	}
	if out.notifications, err = toJSON(w.Notifications); err != nil {
		return nil, err
	}
	if out.retention, err = toJSON(w.Retention); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *WebhookRepository) Create(ctx context.Context, webhook *models.Webhook) error {
	if webhook.ID == "" {
		webhook.ID = "wh_" + uuid.New().String()
	}
	now := time.Now().Unix()
	webhook.CreatedAt = now
	webhook.UpdatedAt = now
	if webhook.Status == "" {
		webhook.Status = models.WebhookStatusActive
	}

	cols, err := encodeWebhook(webhook)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO webhooks (id, webhook_id, user_id, name, description, status, forwarding, security, filters, rules,
			transformation, notifications, retention, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query, webhook.ID, webhook.WebhookID, webhook.UserID, webhook.Name, webhook.Description,
		webhook.Status, cols.forwarding, cols.security, cols.filters, cols.rules, cols.transformation,
		cols.notifications, cols.retention, webhook.ExpiresAt, webhook.CreatedAt, webhook.UpdatedAt)
	return err
}

func scanWebhook(row scanner) (*models.Webhook, error) {
	var w models.Webhook
	var forwarding, security, filters, rules, transformation, notifications, retention sql.NullString
	var lastRequestAt, expiresAt sql.NullInt64

	err := row.Scan(&w.ID, &w.WebhookID, &w.UserID, &w.Name, &w.Description, &w.Status,
		&forwarding, &security, &filters, &rules, &transformation, &notifications, &retention,
		&w.TotalRequests, &w.SuccessfulForwards, &w.FailedForwards,
		&lastRequestAt, &expiresAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if lastRequestAt.Valid {
		v := lastRequestAt.Int64
		w.LastRequestAt = &v
	}
	if expiresAt.Valid {
		v := expiresAt.Int64
		w.ExpiresAt = &v
	}

	for _, col := range []struct {
		name string
		raw  sql.NullString
		dest interface{}
	}{
		{"forwarding", forwarding, &w.Forwarding},
		{"security", security, &w.Security},
		{"filters", filters, &w.Filters},
		{"rules", rules, &w.Rules},
		{"transformation", transformation, &w.Transformation},
		{"notifications", notifications, &w.Notifications},
		{"retention", retention, &w.Retention},
	} {
		if err := fromJSON(col.name, col.raw, col.dest); err != nil {
			return nil, err
		}
	}

	return &w, nil
}

func (r *WebhookRepository) GetByID(ctx context.Context, id string) (*models.Webhook, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id)
	w, err := scanWebhook(row)
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

// GetByWebhookID looks a webhook up by its public token.
func (r *WebhookRepository) GetByWebhookID(ctx context.Context, webhookID string) (*models.Webhook, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE webhook_id = ?`, webhookID)
	w, err := scanWebhook(row)
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

func (r *WebhookRepository) ListByUser(ctx context.Context, userID string) ([]*models.Webhook, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectWebhooks(rows)
}

// ListWithRetention returns webhooks carrying any retention limit.
func (r *WebhookRepository) ListWithRetention(ctx context.Context) ([]*models.Webhook, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE retention <> '{}' AND retention <> ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectWebhooks(rows)
}

func collectWebhooks(rows *sql.Rows) ([]*models.Webhook, error) {
	webhooks := []*models.Webhook{}
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

// Update rewrites the configurable fields. Counters are left alone so a
// concurrent ingest increment is never overwritten.
func (r *WebhookRepository) Update(ctx context.Context, webhook *models.Webhook) error {
	cols, err := encodeWebhook(webhook)
	if err != nil {
		return err
	}
	webhook.UpdatedAt = time.Now().Unix()

	query := `
		UPDATE webhooks
		SET name = ?, description = ?, status = ?, forwarding = ?, security = ?, filters = ?, rules = ?,
			transformation = ?, notifications = ?, retention = ?, expires_at = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query, webhook.Name, webhook.Description, webhook.Status, cols.forwarding,
		cols.security, cols.filters, cols.rules, cols.transformation, cols.notifications, cols.retention,
		webhook.ExpiresAt, webhook.UpdatedAt, webhook.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *WebhookRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *WebhookRepository) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE webhooks SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().Unix(), id)
	return err
}

// IncrementRequests bumps the request counter and stamps the last request time.
func (r *WebhookRepository) IncrementRequests(ctx context.Context, id string, at int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE webhooks SET total_requests = total_requests + 1, last_request_at = ? WHERE id = ?`, at, id)
	return err
}

// IncrementForwardOutcome bumps exactly one of the success/failure counters.
func (r *WebhookRepository) IncrementForwardOutcome(ctx context.Context, id string, success bool) error {
	query := `UPDATE webhooks SET failed_forwards = failed_forwards + 1 WHERE id = ?`
	if success {
		query = `UPDATE webhooks SET successful_forwards = successful_forwards + 1 WHERE id = ?`
	}
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// ExpireDue flips active webhooks whose expiry has passed and returns their public tokens.
func (r *WebhookRepository) ExpireDue(ctx context.Context, now int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT webhook_id FROM webhooks WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		models.WebhookStatusActive, now)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	_, err = r.db.ExecContext(ctx, `UPDATE webhooks SET status = ?, updated_at = ? WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		models.WebhookStatusExpired, now, models.WebhookStatusActive, now)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
