package alerting

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/uptix/hub/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine() (*Engine, *MemorySuppressor) {
	sup := NewMemorySuppressor(time.Hour, 100)
	return NewEngine(Thresholds{CPU: DefaultCPUThreshold}, sup, testLogger()), sup
}

func strPtr(s string) *string { return &s }

func countCategory(intents []models.AlertIntent, category string) int {
	n := 0
	for _, i := range intents {
		if i.Category == category {
			n++
		}
	}
	return n
}

func TestDecideTransitionAlwaysAlerts(t *testing.T) {
	e, _ := newTestEngine()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	sites := []models.SiteResult{{URL: "a.com", Status: "DOWN", PreviousStatus: strPtr("UP")}}

	for i := 0; i < 3; i++ {
		d := e.Decide(context.Background(), Input{HostName: "web-1", Sites: sites}, now.Add(time.Duration(i)*time.Second))
		if len(d.Alerts) != 1 {
			t.Fatalf("run %d: expected exactly one transition alert, got %+v", i, d.Alerts)
		}
		got := d.Alerts[0]
		if got.Category != models.CategorySite || got.Target != "a.com" || got.From != "UP" || got.To != "DOWN" {
			t.Fatalf("unexpected intent: %+v", got)
		}
	}
}

func TestDecideTransitionUnderMaintenanceIsMuted(t *testing.T) {
	e, _ := newTestEngine()
	sites := []models.SiteResult{{URL: "a.com", Status: "DOWN", PreviousStatus: strPtr("UP")}}

	d := e.Decide(context.Background(), Input{HostName: "web-1", Maintenance: true, Sites: sites}, time.Now())
	if len(d.Alerts) != 0 {
		t.Fatalf("expected no alerts under maintenance, got %+v", d.Alerts)
	}
	if countCategory(d.Muted, models.CategorySite) != 1 {
		t.Fatalf("expected exactly one muted transition, got %+v", d.Muted)
	}
}

func TestDecideFirstSightingAndUnchangedDoNotAlert(t *testing.T) {
	e, _ := newTestEngine()
	sites := []models.SiteResult{
		{URL: "new.com", Status: "DOWN"},
		{URL: "a.com", Status: "UP", PreviousStatus: strPtr("UP")},
	}
	d := e.Decide(context.Background(), Input{HostName: "web-1", Sites: sites}, time.Now())
	if len(d.Alerts) != 0 {
		t.Fatalf("expected no alerts, got %+v", d.Alerts)
	}
}

func TestDecideCPUSuppressedWithinWindow(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	in := Input{HostName: "web-1", Gauges: models.Gauges{CPU: 95}}

	first := e.Decide(ctx, in, start)
	if countCategory(first.Alerts, models.CategoryCPU) != 1 {
		t.Fatalf("expected cpu alert on first report, got %+v", first.Alerts)
	}
	if first.Alerts[0].Value != 95 || first.Alerts[0].Threshold != 90 {
		t.Fatalf("unexpected cpu intent: %+v", first.Alerts[0])
	}

	second := e.Decide(ctx, in, start.Add(30*time.Minute))
	if len(second.Alerts) != 0 {
		t.Fatalf("expected second report within window to be suppressed, got %+v", second.Alerts)
	}

	third := e.Decide(ctx, in, start.Add(61*time.Minute))
	if countCategory(third.Alerts, models.CategoryCPU) != 1 {
		t.Fatalf("expected cpu alert after window elapsed, got %+v", third.Alerts)
	}
}

func TestDecideSuppressedReportDoesNotExtendWindow(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	in := Input{HostName: "web-1", Gauges: models.Gauges{CPU: 95}}

	e.Decide(ctx, in, start)
	e.Decide(ctx, in, start.Add(50*time.Minute))
	d := e.Decide(ctx, in, start.Add(61*time.Minute))
	if countCategory(d.Alerts, models.CategoryCPU) != 1 {
		t.Fatalf("expected window measured from the last fired alert, got %+v", d.Alerts)
	}
}

func TestDecideCPUThresholdIsExclusive(t *testing.T) {
	e, _ := newTestEngine()
	d := e.Decide(context.Background(), Input{HostName: "web-1", Gauges: models.Gauges{CPU: 90}}, time.Now())
	if len(d.Alerts) != 0 {
		t.Fatalf("expected cpu == 90 not to alert, got %+v", d.Alerts)
	}
	d = e.Decide(context.Background(), Input{HostName: "web-1", Gauges: models.Gauges{CPU: 90.01}}, time.Now())
	if countCategory(d.Alerts, models.CategoryCPU) != 1 {
		t.Fatalf("expected cpu > 90 to alert, got %+v", d.Alerts)
	}
}

func TestDecideSuppressionIsPerHost(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	now := time.Now()
	e.Decide(ctx, Input{HostName: "web-1", Gauges: models.Gauges{CPU: 95}}, now)
	d := e.Decide(ctx, Input{HostName: "web-2", Gauges: models.Gauges{CPU: 95}}, now)
	if countCategory(d.Alerts, models.CategoryCPU) != 1 {
		t.Fatalf("expected another host to alert independently, got %+v", d.Alerts)
	}
}

func TestDecideMaintenanceMutesEverythingAndKeepsWindow(t *testing.T) {
	e, sup := newTestEngine()
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	in := Input{
		HostName:    "web-1",
		Maintenance: true,
		Gauges:      models.Gauges{CPU: 99},
		Sites:       []models.SiteResult{{URL: "a.com", Status: "DOWN", PreviousStatus: strPtr("UP")}},
	}

	d := e.Decide(ctx, in, now)
	if len(d.Alerts) != 0 {
		t.Fatalf("expected zero alerts under maintenance, got %+v", d.Alerts)
	}
	if len(d.Muted) != 2 {
		t.Fatalf("expected transition and cpu breach muted, got %+v", d.Muted)
	}
	if sup.Len() != 0 {
		t.Fatal("expected maintenance not to consume the suppression window")
	}

	in.Maintenance = false
	in.Sites = nil
	d = e.Decide(ctx, in, now.Add(time.Minute))
	if countCategory(d.Alerts, models.CategoryCPU) != 1 {
		t.Fatalf("expected cpu alert once maintenance ends, got %+v", d.Alerts)
	}
}

func TestDecideOptionalGauges(t *testing.T) {
	sup := NewMemorySuppressor(time.Hour, 100)
	e := NewEngine(Thresholds{CPU: 90, RAM: 80}, sup, testLogger())
	d := e.Decide(context.Background(), Input{HostName: "web-1", Gauges: models.Gauges{RAM: 85, Disk: 99}}, time.Now())
	if countCategory(d.Alerts, models.CategoryRAM) != 1 {
		t.Fatalf("expected ram alert, got %+v", d.Alerts)
	}
	if countCategory(d.Alerts, models.CategoryDisk) != 0 {
		t.Fatalf("expected disk alert disabled by default, got %+v", d.Alerts)
	}
}
