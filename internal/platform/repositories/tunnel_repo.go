package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"hookrelay/internal/platform/models"
)

type TunnelRepository struct {
	db *sql.DB
}

func NewTunnelRepository(db *sql.DB) *TunnelRepository {
	return &TunnelRepository{db: db}
}

func (r *TunnelRepository) Create(ctx context.Context, t *models.Tunnel) error {
	if t.ID == "" {
		t.ID = "tun_" + uuid.New().String()
	}
	now := time.Now().Unix()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = models.TunnelStatusInactive
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tunnels (id, user_id, subdomain, local_port, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, t.Subdomain, t.LocalPort, t.Status, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *TunnelRepository) GetByID(ctx context.Context, id string) (*models.Tunnel, error) {
	var t models.Tunnel
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, subdomain, local_port, status, created_at, updated_at
		FROM tunnels WHERE id = ?
	`, id).Scan(&t.ID, &t.UserID, &t.Subdomain, &t.LocalPort, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *TunnelRepository) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tunnels SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
