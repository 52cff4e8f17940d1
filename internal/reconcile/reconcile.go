// Package reconcile diffs the sites a host reports against their stored state.
package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/uptix/hub/internal/models"
	"github.com/uptix/hub/internal/store"
)

type Reconciler struct {
	store  store.Store
	logger *slog.Logger
}

func New(st store.Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: st, logger: logger}
}

// Reconcile upserts every reported site for hostID in the order given and
// returns one result per persisted site. Sites the host did not report are
// left untouched. Entries without a url are skipped.
func (r *Reconciler) Reconcile(ctx context.Context, hostID string, reported []models.SiteReport, now time.Time) ([]models.SiteResult, error) {
	results := make([]models.SiteResult, 0, len(reported))
	for _, rep := range reported {
		url := strings.TrimSpace(rep.URL)
		if url == "" {
			r.logger.Debug("skipping site without url", "host_id", hostID)
			continue
		}

		existing, err := r.store.GetSite(ctx, hostID, url)
		if err != nil {
			return nil, store.Unavailable("lookup site", err)
		}

		if existing == nil {
			site := &models.Site{HostID: hostID, URL: url, Status: rep.Status, LastCheckAt: now}
			if err := r.store.CreateSite(ctx, site); err != nil {
				return nil, store.Unavailable("create site", err)
			}
			results = append(results, models.SiteResult{URL: url, Status: rep.Status})
			continue
		}

		previous := existing.Status
		if err := r.store.UpdateSite(ctx, existing.ID, rep.Status, now); err != nil {
			return nil, store.Unavailable("update site", err)
		}
		results = append(results, models.SiteResult{URL: url, Status: rep.Status, PreviousStatus: &previous})
	}
	return results, nil
}
