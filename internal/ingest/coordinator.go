// Package ingest runs an agent report through registration, site
// reconciliation, alert decision and broadcast.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/uptix/hub/internal/alerting"
	"github.com/uptix/hub/internal/metrics"
	"github.com/uptix/hub/internal/models"
	"github.com/uptix/hub/internal/reconcile"
	"github.com/uptix/hub/internal/registry"
	"github.com/uptix/hub/internal/store"
)

var (
	// ErrMalformedReport is returned for reports that fail validation.
	// Nothing is persisted for them.
	ErrMalformedReport = errors.New("malformed report")
	// ErrStorageUnavailable aborts the report. No alert is sent and
	// nothing is broadcast for it.
	ErrStorageUnavailable = store.ErrUnavailable
)

// Notifier accepts formatted alerts for asynchronous delivery.
type Notifier interface {
	Submit(n models.Notification) bool
}

// Publisher pushes events to live viewers.
type Publisher interface {
	Publish(event string, data any) error
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Store      store.Store
	Registry   *registry.Registry
	Reconciler *reconcile.Reconciler
	Engine     *alerting.Engine
	Notifier   Notifier
	Publisher  Publisher

	// SubjectPrefix is prepended to alert subjects.
	SubjectPrefix string
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

type Coordinator struct {
	store         store.Store
	registry      *registry.Registry
	reconciler    *reconcile.Reconciler
	engine        *alerting.Engine
	notifier      Notifier
	publisher     Publisher
	subjectPrefix string
	now           func() time.Time
	hostLocks     *keyedMutex
	logger        *slog.Logger
}

func New(d Deps, logger *slog.Logger) *Coordinator {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		store:         d.Store,
		registry:      d.Registry,
		reconciler:    d.Reconciler,
		engine:        d.Engine,
		notifier:      d.Notifier,
		publisher:     d.Publisher,
		subjectPrefix: d.SubjectPrefix,
		now:           now,
		hostLocks:     newKeyedMutex(),
		logger:        logger,
	}
}

// Ingest processes one report. Reports from the same host are handled one
// at a time in arrival order; different hosts proceed in parallel.
func (c *Coordinator) Ingest(ctx context.Context, r models.Report) error {
	start := time.Now()
	defer func() { metrics.ReportDuration.Observe(time.Since(start).Seconds()) }()

	name, gauges, err := validate(r)
	if err != nil {
		metrics.ReportsTotal.WithLabelValues(metrics.OutcomeMalformed).Inc()
		c.logger.Warn("rejected malformed report", "server_name", r.ServerName, "err", err)
		return err
	}

	unlock := c.hostLocks.Lock(name)
	defer unlock()

	if err := c.process(ctx, name, gauges, r.Sites); err != nil {
		metrics.ReportsTotal.WithLabelValues(metrics.OutcomeStorage).Inc()
		c.logger.Error("report aborted", "host", name, "err", err)
		return err
	}
	metrics.ReportsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	return nil
}

func (c *Coordinator) process(ctx context.Context, name string, gauges models.Gauges, reported []models.SiteReport) error {
	now := c.now().UTC()

	host, err := c.registry.Resolve(ctx, name, now)
	if err != nil {
		return err
	}
	c.logger.Debug("host resolved", "host", name, "host_id", host.HostID, "existed", host.Existed)

	sample := &models.Sample{
		HostID:     host.HostID,
		RecordedAt: now,
		CPUUsage:   gauges.CPU,
		RAMUsage:   gauges.RAM,
		DiskUsage:  gauges.Disk,
	}
	if err := c.store.InsertSample(ctx, sample); err != nil {
		return store.Unavailable("insert sample", err)
	}

	results, err := c.reconciler.Reconcile(ctx, host.HostID, reported, now)
	if err != nil {
		return err
	}
	c.logger.Debug("sites reconciled", "host", name, "count", len(results))

	sites, err := c.store.ListSites(ctx, host.HostID)
	if err != nil {
		return store.Unavailable("list sites", err)
	}

	decision := c.engine.Decide(ctx, alerting.Input{
		HostName:    host.Name,
		Maintenance: host.Maintenance,
		Gauges:      gauges,
		Sites:       results,
	}, now)
	for _, intent := range decision.Alerts {
		c.notifier.Submit(alerting.Format(c.subjectPrefix, host.Name, intent, now))
	}
	c.logger.Debug("alerts decided", "host", name, "fired", len(decision.Alerts), "muted", len(decision.Muted))

	if sites == nil {
		sites = []models.Site{}
	}
	snap := models.Snapshot{
		ServerID:      host.HostID,
		ServerName:    host.Name,
		CPUUsage:      gauges.CPU,
		RAMUsage:      gauges.RAM,
		DiskUsage:     gauges.Disk,
		Sites:         sites,
		IsMaintenance: host.Maintenance,
		Timestamp:     now,
	}
	if err := c.publisher.Publish(models.EventMetricsUpdate, snap); err != nil {
		c.logger.Error("failed to broadcast snapshot", "host", name, "err", err)
	}
	return nil
}

// SetMaintenance toggles maintenance mode for a host and tells live viewers.
// The flag applies from the host's next report on.
func (c *Coordinator) SetMaintenance(ctx context.Context, hostID string, maintenance bool) (*models.Host, error) {
	host, err := c.registry.SetMaintenance(ctx, hostID, maintenance)
	if err != nil {
		return nil, err
	}

	unlock := c.hostLocks.Lock(host.Name)
	defer unlock()

	update := models.MaintenanceUpdate{
		ServerID:      host.ID,
		ServerName:    host.Name,
		IsMaintenance: host.IsMaintenance,
		Timestamp:     c.now().UTC(),
	}
	if err := c.publisher.Publish(models.EventMaintenanceUpdate, update); err != nil {
		c.logger.Error("failed to broadcast maintenance update", "host", host.Name, "err", err)
	}
	return host, nil
}

func validate(r models.Report) (string, models.Gauges, error) {
	name := strings.TrimSpace(r.ServerName)
	if name == "" {
		return "", models.Gauges{}, fmt.Errorf("%w: server_name is required", ErrMalformedReport)
	}

	var g models.Gauges
	for _, f := range []struct {
		field string
		in    *float64
		out   *float64
	}{
		{"cpu_usage", r.CPUUsage, &g.CPU},
		{"ram_usage", r.RAMUsage, &g.RAM},
		{"disk_usage", r.DiskUsage, &g.Disk},
	} {
		if f.in == nil {
			return "", models.Gauges{}, fmt.Errorf("%w: %s is required", ErrMalformedReport, f.field)
		}
		if math.IsNaN(*f.in) || math.IsInf(*f.in, 0) {
			return "", models.Gauges{}, fmt.Errorf("%w: %s must be a finite number", ErrMalformedReport, f.field)
		}
		*f.out = *f.in
	}
	return name, g, nil
}
