package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptix/hub/internal/models"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) getUserVersion() int {
	var v int
	s.db.QueryRow("PRAGMA user_version").Scan(&v)
	return v
}

func (s *SQLiteStore) migrate() error {
	current := s.getUserVersion()
	for i := current; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration v%d: %w", i+1, err)
		}
		if err := migrations[i](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("set user_version %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", i+1, err)
		}
	}
	return nil
}

// --- Hosts ---

const hostColumns = `id, name, is_maintenance, first_seen_at, last_seen_at`

func scanHost(row interface{ Scan(...any) error }) (*models.Host, error) {
	h := &models.Host{}
	if err := row.Scan(&h.ID, &h.Name, &h.IsMaintenance, &h.FirstSeenAt, &h.LastSeenAt); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *SQLiteStore) GetHost(ctx context.Context, id string) (*models.Host, error) {
	h, err := scanHost(s.db.QueryRowContext(ctx, `SELECT `+hostColumns+` FROM hosts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get host: %w", err)
	}
	return h, nil
}

func (s *SQLiteStore) GetHostByName(ctx context.Context, name string) (*models.Host, error) {
	h, err := scanHost(s.db.QueryRowContext(ctx, `SELECT `+hostColumns+` FROM hosts WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get host by name: %w", err)
	}
	return h, nil
}

func (s *SQLiteStore) CreateHost(ctx context.Context, name string, seenAt time.Time) (*models.Host, bool, error) {
	id := uuid.New().String()
	seenAt = seenAt.UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO hosts (id, name, is_maintenance, first_seen_at, last_seen_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(name) DO NOTHING`, id, name, seenAt, seenAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert host: %w", err)
	}
	n, _ := res.RowsAffected()

	h, err := s.GetHostByName(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if h == nil {
		return nil, false, fmt.Errorf("insert host %q: row missing after insert", name)
	}
	return h, n == 1, nil
}

func (s *SQLiteStore) TouchHost(ctx context.Context, id string, seenAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE hosts SET last_seen_at = ? WHERE id = ?`, seenAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch host: %w", err)
	}
	return expectRow(res)
}

func (s *SQLiteStore) SetHostMaintenance(ctx context.Context, id string, maintenance bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE hosts SET is_maintenance = ? WHERE id = ?`, maintenance, id)
	if err != nil {
		return fmt.Errorf("set maintenance: %w", err)
	}
	return expectRow(res)
}

func (s *SQLiteStore) ListHosts(ctx context.Context) ([]models.HostWithSample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT h.id, h.name, h.is_maintenance, h.first_seen_at, h.last_seen_at,
		m.id, m.recorded_at, m.cpu_usage, m.ram_usage, m.disk_usage
		FROM hosts h
		LEFT JOIN samples m ON m.host_id = h.id AND m.id = (
			SELECT id FROM samples WHERE host_id = h.id ORDER BY recorded_at DESC, id DESC LIMIT 1
		)
		ORDER BY h.last_seen_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	defer rows.Close()

	var result []models.HostWithSample
	for rows.Next() {
		var hws models.HostWithSample
		var sampleID sql.NullInt64
		var recordedAt sql.NullTime
		var cpu, ram, disk sql.NullFloat64

		err := rows.Scan(&hws.ID, &hws.Name, &hws.IsMaintenance, &hws.FirstSeenAt, &hws.LastSeenAt,
			&sampleID, &recordedAt, &cpu, &ram, &disk)
		if err != nil {
			return nil, fmt.Errorf("scan host row: %w", err)
		}
		if sampleID.Valid {
			hws.LatestSample = &models.Sample{
				ID:         sampleID.Int64,
				HostID:     hws.ID,
				RecordedAt: recordedAt.Time,
				CPUUsage:   cpu.Float64,
				RAMUsage:   ram.Float64,
				DiskUsage:  disk.Float64,
			}
		}
		result = append(result, hws)
	}
	return result, rows.Err()
}

// --- Samples ---

func (s *SQLiteStore) InsertSample(ctx context.Context, m *models.Sample) error {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now()
	}
	m.RecordedAt = m.RecordedAt.UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO samples (host_id, recorded_at, cpu_usage, ram_usage, disk_usage)
		VALUES (?, ?, ?, ?, ?)`,
		m.HostID, m.RecordedAt, m.CPUUsage, m.RAMUsage, m.DiskUsage)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	m.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) GetLatestSample(ctx context.Context, hostID string) (*models.Sample, error) {
	m := &models.Sample{}
	err := s.db.QueryRowContext(ctx, `SELECT id, host_id, recorded_at, cpu_usage, ram_usage, disk_usage
		FROM samples WHERE host_id = ? ORDER BY recorded_at DESC, id DESC LIMIT 1`, hostID).Scan(
		&m.ID, &m.HostID, &m.RecordedAt, &m.CPUUsage, &m.RAMUsage, &m.DiskUsage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest sample: %w", err)
	}
	return m, nil
}

// --- Sites ---

func (s *SQLiteStore) GetSite(ctx context.Context, hostID, url string) (*models.Site, error) {
	site := &models.Site{}
	err := s.db.QueryRowContext(ctx, `SELECT id, host_id, url, status, last_check_at
		FROM sites WHERE host_id = ? AND url = ?`, hostID, url).Scan(
		&site.ID, &site.HostID, &site.URL, &site.Status, &site.LastCheckAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	return site, nil
}

func (s *SQLiteStore) CreateSite(ctx context.Context, site *models.Site) error {
	site.LastCheckAt = site.LastCheckAt.UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO sites (host_id, url, status, last_check_at)
		VALUES (?, ?, ?, ?)`, site.HostID, site.URL, site.Status, site.LastCheckAt)
	if err != nil {
		return fmt.Errorf("insert site %q: %w", site.URL, err)
	}
	site.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) UpdateSite(ctx context.Context, id int64, status string, checkedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sites SET status = ?, last_check_at = ? WHERE id = ?`,
		status, checkedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("update site: %w", err)
	}
	return expectRow(res)
}

func (s *SQLiteStore) ListSites(ctx context.Context, hostID string) ([]models.Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, host_id, url, status, last_check_at
		FROM sites WHERE host_id = ? ORDER BY id`, hostID)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []models.Site
	for rows.Next() {
		var site models.Site
		if err := rows.Scan(&site.ID, &site.HostID, &site.URL, &site.Status, &site.LastCheckAt); err != nil {
			return nil, fmt.Errorf("scan site row: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (token, created_at, expires_at) VALUES (?, ?, ?)`,
		sess.Token, sess.CreatedAt.UTC(), sess.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	sess := &models.Session{}
	err := s.db.QueryRowContext(ctx, `SELECT token, created_at, expires_at FROM sessions WHERE token = ?`, token).Scan(
		&sess.Token, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// --- Maintenance ---

func (s *SQLiteStore) PruneOldData(ctx context.Context, sampleRetention time.Duration, now time.Time) (int64, error) {
	var totalDeleted int64

	cutoff := now.Add(-sampleRetention).UTC()
	result, err := s.db.ExecContext(ctx, "DELETE FROM samples WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune samples: %w", err)
	}
	n, _ := result.RowsAffected()
	totalDeleted += n

	result, err = s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", now.UTC())
	if err != nil {
		return totalDeleted, fmt.Errorf("prune sessions: %w", err)
	}
	n, _ = result.RowsAffected()
	totalDeleted += n

	return totalDeleted, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
