package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptix/hub/internal/models"
)

// ErrNotFound is returned by updates that matched no row.
var ErrNotFound = errors.New("not found")

// Store defines the data access interface for the hub. Lookups return
// (nil, nil) when nothing matches.
type Store interface {
	Close() error
	Ping(ctx context.Context) error

	// Hosts
	GetHost(ctx context.Context, id string) (*models.Host, error)
	GetHostByName(ctx context.Context, name string) (*models.Host, error)
	// CreateHost inserts a host unless the name is already taken and returns
	// the stored record. created is false when another writer won the race.
	CreateHost(ctx context.Context, name string, seenAt time.Time) (host *models.Host, created bool, err error)
	TouchHost(ctx context.Context, id string, seenAt time.Time) error
	SetHostMaintenance(ctx context.Context, id string, maintenance bool) error
	ListHosts(ctx context.Context) ([]models.HostWithSample, error)

	// Samples
	InsertSample(ctx context.Context, s *models.Sample) error
	GetLatestSample(ctx context.Context, hostID string) (*models.Sample, error)

	// Sites
	GetSite(ctx context.Context, hostID, url string) (*models.Site, error)
	CreateSite(ctx context.Context, site *models.Site) error
	UpdateSite(ctx context.Context, id int64, status string, checkedAt time.Time) error
	ListSites(ctx context.Context, hostID string) ([]models.Site, error)

	// Sessions
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)

	// Maintenance
	PruneOldData(ctx context.Context, sampleRetention time.Duration, now time.Time) (int64, error)
}

// ErrUnavailable marks any failed persistence operation. Callers abort the
// unit of work they were performing when they see it.
var ErrUnavailable = errors.New("storage unavailable")

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds while
// the underlying driver error stays inspectable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
