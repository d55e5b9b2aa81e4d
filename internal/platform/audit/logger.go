package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ActionWebhookCreate = "webhook.create"
	ActionWebhookUpdate = "webhook.update"
	ActionWebhookDelete = "webhook.delete"
	ActionEventReplay   = "event.replay"
	ActionEventResend   = "event.resend"
)

type AuditLog struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	IPAddress    string                 `json:"ip_address"`
	UserAgent    string                 `json:"user_agent"`
	CreatedAt    int64                  `json:"created_at"`
}

// Logger records management actions. Writes happen in the background so the
// API response never waits on them.
type Logger struct {
	db *sql.DB
	wg sync.WaitGroup
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

func (l *Logger) Log(r *http.Request, userID, action, resourceType, resourceID string, metadata map[string]interface{}) {
	ip := "unknown"
	ua := "unknown"
	if r != nil {
		ip = r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
		ua = r.UserAgent()
	}

	entry := &AuditLog{
		ID:           "audit_" + uuid.New().String(),
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		IPAddress:    ip,
		UserAgent:    ua,
		CreatedAt:    time.Now().Unix(),
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.insert(context.Background(), entry); err != nil {
			log.Error().Err(err).Str("action", action).Str("resource_id", resourceID).Msg("failed to write audit log")
		}
	}()
}

func (l *Logger) insert(ctx context.Context, e *AuditLog) error {
	var meta sql.NullString
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.Action, e.ResourceType, e.ResourceID, meta, e.IPAddress, e.UserAgent, e.CreatedAt)
	return err
}

// Flush blocks until every pending write has finished.
func (l *Logger) Flush() {
	l.wg.Wait()
}

func (l *Logger) List(ctx context.Context, userID string, limit int) ([]*AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at
		FROM audit_logs WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*AuditLog{}
	for rows.Next() {
		var e AuditLog
		var meta, ip, ua sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID, &meta, &ip, &ua, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		if meta.Valid && meta.String != "" {
			json.Unmarshal([]byte(meta.String), &e.Metadata)
		}
		logs = append(logs, &e)
	}
	return logs, rows.Err()
}
