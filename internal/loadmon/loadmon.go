// Package loadmon supplies read-only database load snapshots to the strategy
// selector.
package loadmon

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/resolvd/internal/config"
)

// Snapshot is a point-in-time view of database load. CPU and Memory are
// utilisation fractions in [0,1].
type Snapshot struct {
	CPU               float64 `json:"cpu"`
	Memory            float64 `json:"memory"`
	ActiveConnections int     `json:"active_connections"`
}

// UnderPressure reports whether cpu or memory has reached threshold. A
// non-positive threshold never reports pressure.
func (s Snapshot) UnderPressure(threshold float64) bool {
	if threshold <= 0 {
		return false
	}
	return s.CPU >= threshold || s.Memory >= threshold
}

// Provider returns the current load snapshot.
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Static is a Provider with settable values, used when no metrics source
// is configured and in tests.
type Static struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStatic creates a Static provider reporting snap.
func NewStatic(snap Snapshot) *Static {
	return &Static{snap: snap}
}

// Snapshot implements Provider.
func (s *Static) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, nil
}

// Set replaces the reported snapshot.
func (s *Static) Set(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// FromConfig builds the provider selected by cfg.
func FromConfig(cfg config.LoadConfig) (Provider, error) {
	switch cfg.Source {
	case config.LoadStatic, "":
		return NewStatic(Snapshot{
			CPU:               cfg.CPU,
			Memory:            cfg.Memory,
			ActiveConnections: cfg.Connections,
		}), nil
	case config.LoadPrometheus:
		return NewPromProvider(cfg.PrometheusURL, Queries{
			CPU:         cfg.CPUQuery,
			Memory:      cfg.MemoryQuery,
			Connections: cfg.ConnectionsQuery,
		}, cfg.Timeout.Duration()), nil
	default:
		return nil, fmt.Errorf("unknown load source %q", cfg.Source)
	}
}
