package alerting

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptix/hub/internal/metrics"
	"github.com/uptix/hub/internal/models"
)

// DefaultCPUThreshold is the CPU percentage a report must exceed to alert.
const DefaultCPUThreshold = 90

// Thresholds are the gauge limits that trigger threshold alerts. A reading
// must be strictly greater than its limit. Zero disables the gauge.
type Thresholds struct {
	CPU  float64
	RAM  float64
	Disk float64
}

// Input is everything the engine needs to decide on one report.
type Input struct {
	HostName    string
	Maintenance bool
	Gauges      models.Gauges
	Sites       []models.SiteResult
}

// Decision lists the alerts to send for a report. Muted holds the alerts a
// host in maintenance mode would otherwise have raised; threshold alerts
// in Muted were not checked against the suppressor.
type Decision struct {
	Alerts []models.AlertIntent
	Muted  []models.AlertIntent
}

type Engine struct {
	thresholds Thresholds
	suppressor Suppressor
	logger     *slog.Logger
}

func NewEngine(thresholds Thresholds, suppressor Suppressor, logger *slog.Logger) *Engine {
	return &Engine{
		thresholds: thresholds,
		suppressor: suppressor,
		logger:     logger,
	}
}

// Decide applies the alert rules to one reconciled report. Its only side
// effect is on the suppressor, and only for threshold alerts that fire.
func (e *Engine) Decide(ctx context.Context, in Input, now time.Time) Decision {
	transitions := siteTransitions(in.Sites)
	breaches := e.breaches(in.Gauges)

	if in.Maintenance {
		muted := append(transitions, breaches...)
		for _, intent := range muted {
			metrics.AlertDecisions.WithLabelValues(intent.Category, "muted").Inc()
		}
		if len(muted) > 0 {
			e.logger.Debug("alerts muted by maintenance mode", "host", in.HostName, "count", len(muted))
		}
		return Decision{Muted: muted}
	}

	var d Decision
	for _, intent := range transitions {
		metrics.AlertDecisions.WithLabelValues(intent.Category, "fired").Inc()
		d.Alerts = append(d.Alerts, intent)
	}

	for _, intent := range breaches {
		key := SuppressionKey(in.HostName, intent.Category)
		if !e.suppressor.Allow(ctx, key, now) {
			metrics.AlertDecisions.WithLabelValues(intent.Category, "suppressed").Inc()
			e.logger.Debug("threshold alert suppressed", "key", key, "value", intent.Value)
			continue
		}
		metrics.AlertDecisions.WithLabelValues(intent.Category, "fired").Inc()
		d.Alerts = append(d.Alerts, intent)
	}
	return d
}

func siteTransitions(sites []models.SiteResult) []models.AlertIntent {
	var out []models.AlertIntent
	for _, s := range sites {
		if !s.Transitioned() {
			continue
		}
		out = append(out, models.AlertIntent{
			Category: models.CategorySite,
			Target:   s.URL,
			From:     *s.PreviousStatus,
			To:       s.Status,
		})
	}
	return out
}

func (e *Engine) breaches(g models.Gauges) []models.AlertIntent {
	var out []models.AlertIntent
	check := func(category string, value, limit float64) {
		if limit > 0 && value > limit {
			out = append(out, models.AlertIntent{Category: category, Value: value, Threshold: limit})
		}
	}
	check(models.CategoryCPU, g.CPU, e.thresholds.CPU)
	check(models.CategoryRAM, g.RAM, e.thresholds.RAM)
	check(models.CategoryDisk, g.Disk, e.thresholds.Disk)
	return out
}
