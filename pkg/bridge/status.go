package bridge

import (
	"time"

	"github.com/odvcencio/cdpbridge/pkg/cdp"
)

// ConnStatus is a point-in-time view of one pooled connection.
type ConnStatus struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	LastActive time.Time `json:"last_active"`
}

// DomainStatus is a point-in-time view of one protocol domain.
type DomainStatus struct {
	Name     string       `json:"name"`
	State    string       `json:"state"`
	Tier     cdp.RiskTier `json:"tier"`
	LastUsed time.Time    `json:"last_used,omitempty"`
}

// Status is the diagnostic snapshot served by the ops endpoint.
type Status struct {
	Endpoint    string         `json:"endpoint"`
	PoolSize    int            `json:"pool_size"`
	Connections []ConnStatus   `json:"connections"`
	Domains     []DomainStatus `json:"domains"`
	EventFill   map[string]int `json:"event_fill"`
}

// Status returns a snapshot of pool, domain, and buffer state.
func (b *Bridge) Status() Status {
	conns := b.pool.Live()
	connStatuses := make([]ConnStatus, 0, len(conns))
	for _, conn := range conns {
		connStatuses = append(connStatuses, ConnStatus{
			ID:         conn.ID(),
			State:      conn.State().String(),
			LastActive: conn.LastActive(),
		})
	}

	return Status{
		Endpoint:    b.cfg.Endpoint,
		PoolSize:    b.pool.Size(),
		Connections: connStatuses,
		Domains:     b.domains.Snapshot(),
		EventFill:   b.agg.Fill(),
	}
}
