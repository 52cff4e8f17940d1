package retention

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/uptix/hub/internal/models"
	"github.com/uptix/hub/internal/store"
)

func TestPruneRemovesOldSamples(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "hub.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	host, _, err := st.CreateHost(ctx, "web-1", now)
	if err != nil {
		t.Fatalf("create host: %v", err)
	}
	for _, at := range []time.Time{now.Add(-20 * 24 * time.Hour), now.Add(-time.Hour)} {
		if err := st.InsertSample(ctx, &models.Sample{HostID: host.ID, RecordedAt: at, CPUUsage: 1}); err != nil {
			t.Fatalf("insert sample: %v", err)
		}
	}

	p := New(st, Config{SamplesDays: 14}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.now = func() time.Time { return now }

	if deleted := p.Prune(ctx); deleted != 1 {
		t.Fatalf("expected one pruned sample, got %d", deleted)
	}
	latest, err := st.GetLatestSample(ctx, host.ID)
	if err != nil || latest == nil {
		t.Fatalf("expected recent sample kept: %v %v", latest, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "hub.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	p := New(st, Config{Interval: time.Millisecond}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retention job did not stop")
	}
}
