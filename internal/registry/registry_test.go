package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/uptix/hub/internal/models"
	"github.com/uptix/hub/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "hub.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, slog.New(slog.NewTextHandler(io.Discard, nil))), st
}

type brokenStore struct {
	store.Store
}

func (brokenStore) GetHostByName(ctx context.Context, name string) (*models.Host, error) {
	return nil, errors.New("database is locked")
}

func TestResolveCreatesThenReuses(t *testing.T) {
	reg, st := newTestRegistry(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	first, err := reg.Resolve(ctx, "web-1", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first.Existed || first.Maintenance || first.HostID == "" {
		t.Fatalf("unexpected first resolution: %+v", first)
	}

	later := now.Add(2 * time.Minute)
	second, err := reg.Resolve(ctx, "web-1", later)
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if !second.Existed || second.HostID != first.HostID {
		t.Fatalf("expected same host on second report: %+v vs %+v", first, second)
	}

	host, _ := st.GetHost(ctx, first.HostID)
	if host == nil || !host.LastSeenAt.Equal(later) {
		t.Fatalf("expected last_seen refreshed to %s, got %+v", later, host)
	}
}

func TestResolveReportsMaintenanceFlag(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	res, _ := reg.Resolve(ctx, "db-1", now)
	host, err := reg.SetMaintenance(ctx, res.HostID, true)
	if err != nil {
		t.Fatalf("set maintenance: %v", err)
	}
	if !host.IsMaintenance {
		t.Fatalf("expected maintenance flag echoed, got %+v", host)
	}

	res, err = reg.Resolve(ctx, "db-1", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Maintenance {
		t.Fatal("expected next resolution to carry maintenance=true")
	}
}

func TestSetMaintenanceUnknownHost(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.SetMaintenance(context.Background(), "missing", true)
	if !errors.Is(err, ErrHostNotFound) {
		t.Fatalf("expected ErrHostNotFound, got %v", err)
	}
}

func TestResolveStoreFailureIsStorageUnavailable(t *testing.T) {
	reg := New(brokenStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := reg.Resolve(context.Background(), "web-1", time.Now())
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
