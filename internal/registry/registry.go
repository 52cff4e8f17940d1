// Package registry maps host names to their durable records.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/uptix/hub/internal/models"
	"github.com/uptix/hub/internal/store"
)

var ErrHostNotFound = errors.New("host not found")

// Resolution is the outcome of resolving a reporting host.
type Resolution struct {
	HostID      string
	Name        string
	Existed     bool
	Maintenance bool
}

type Registry struct {
	store  store.Store
	logger *slog.Logger
}

func New(st store.Store, logger *slog.Logger) *Registry {
	return &Registry{store: st, logger: logger}
}

// Resolve returns the host registered under name, creating it on first
// sight. Existing hosts get their last-seen time refreshed to now.
// Any store failure is reported as store.ErrUnavailable.
func (r *Registry) Resolve(ctx context.Context, name string, now time.Time) (Resolution, error) {
	name = strings.TrimSpace(name)

	host, err := r.store.GetHostByName(ctx, name)
	if err != nil {
		return Resolution{}, store.Unavailable("resolve host", err)
	}
	if host != nil {
		if err := r.store.TouchHost(ctx, host.ID, now); err != nil {
			return Resolution{}, store.Unavailable("refresh last seen", err)
		}
		return Resolution{HostID: host.ID, Name: host.Name, Existed: true, Maintenance: host.IsMaintenance}, nil
	}

	host, created, err := r.store.CreateHost(ctx, name, now)
	if err != nil {
		return Resolution{}, store.Unavailable("create host", err)
	}
	if !created {
		// Another writer registered the name between our lookup and insert.
		if err := r.store.TouchHost(ctx, host.ID, now); err != nil {
			return Resolution{}, store.Unavailable("refresh last seen", err)
		}
		return Resolution{HostID: host.ID, Name: host.Name, Existed: true, Maintenance: host.IsMaintenance}, nil
	}

	r.logger.Info("registered new host", "host_id", host.ID, "name", host.Name)
	return Resolution{HostID: host.ID, Name: host.Name}, nil
}

// SetMaintenance persists the maintenance flag for a host and returns the
// updated record. The next report from the host is evaluated with it.
func (r *Registry) SetMaintenance(ctx context.Context, hostID string, maintenance bool) (*models.Host, error) {
	if err := r.store.SetHostMaintenance(ctx, hostID, maintenance); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrHostNotFound
		}
		return nil, store.Unavailable("set maintenance", err)
	}
	host, err := r.store.GetHost(ctx, hostID)
	if err != nil {
		return nil, store.Unavailable("get host", err)
	}
	if host == nil {
		return nil, ErrHostNotFound
	}
	r.logger.Info("maintenance mode changed", "host_id", host.ID, "name", host.Name, "is_maintenance", host.IsMaintenance)
	return host, nil
}
