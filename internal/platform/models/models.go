package models

const (
	TunnelStatusActive   = "active"
	TunnelStatusInactive = "inactive"
)

// Tunnel is a developer's locally exposed port. Only its port and activity
// flag matter for forwarding.
type Tunnel struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Subdomain string `json:"subdomain"`
	LocalPort int    `json:"local_port"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func (t *Tunnel) IsActive() bool {
	return t.Status == TunnelStatusActive
}
