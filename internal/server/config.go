package server

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/uptix/hub/internal/alerting"
	"github.com/uptix/hub/internal/broadcast"
	"github.com/uptix/hub/internal/retention"
)

// DefaultSessionTTL is how long a login token stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

type Config struct {
	ListenAddr   string `toml:"listen_addr"`
	DatabasePath string `toml:"database_path"`

	// TLS
	TLSMode      string `toml:"tls_mode"`  // "autocert", "manual", "none"
	Domain       string `toml:"domain"`    // for autocert
	CertFile     string `toml:"cert_file"` // for manual
	KeyFile      string `toml:"key_file"`  // for manual
	CertCacheDir string `toml:"cert_cache_dir"`

	// Auth
	AdminPasswordHash string        `toml:"admin_password_hash"`
	AgentPasswordHash string        `toml:"agent_password_hash"` // empty: agents are not authenticated
	SessionTTL        time.Duration `toml:"session_ttl"`

	Log       LogConfig            `toml:"log"`
	Alerts    AlertsConfig         `toml:"alerts"`
	Redis     alerting.RedisConfig `toml:"redis"`
	Retention retention.Config     `toml:"retention"`
	Broadcast BroadcastConfig      `toml:"broadcast"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

type AlertsConfig struct {
	CPUThreshold        float64       `toml:"cpu_threshold"`
	RAMThreshold        float64       `toml:"ram_threshold"`
	DiskThreshold       float64       `toml:"disk_threshold"`
	SuppressionWindow   time.Duration `toml:"suppression_window"`
	SuppressionCapacity int           `toml:"suppression_capacity"`
	SubjectPrefix       string        `toml:"subject_prefix"`

	Transport   string        `toml:"transport"` // "none", "smtp", "webhook"
	QueueSize   int           `toml:"queue_size"`
	Workers     int           `toml:"workers"`
	SendTimeout time.Duration `toml:"send_timeout"`

	SMTP    alerting.SMTPSender    `toml:"smtp"`
	Webhook alerting.WebhookSender `toml:"webhook"`
}

func (a AlertsConfig) Thresholds() alerting.Thresholds {
	return alerting.Thresholds{CPU: a.CPUThreshold, RAM: a.RAMThreshold, Disk: a.DiskThreshold}
}

func (a AlertsConfig) Dispatcher() alerting.DispatcherConfig {
	return alerting.DispatcherConfig{QueueSize: a.QueueSize, Workers: a.Workers, SendTimeout: a.SendTimeout}
}

type BroadcastConfig struct {
	BufferSize int `toml:"buffer_size"`
}

func DefaultServerConfig() *Config {
	return &Config{
		ListenAddr:   ":8080",
		DatabasePath: defaultDataPath("uptix.db"),
		TLSMode:      "none",
		CertCacheDir: defaultDataPath("certs"),
		SessionTTL:   DefaultSessionTTL,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Alerts: AlertsConfig{
			CPUThreshold:        alerting.DefaultCPUThreshold,
			SuppressionWindow:   alerting.DefaultSuppressionWindow,
			SuppressionCapacity: alerting.DefaultSuppressionCapacity,
			SubjectPrefix:       alerting.DefaultSubjectPrefix,
			Transport:           alerting.TransportNone,
			QueueSize:           256,
			Workers:             2,
			SendTimeout:         30 * time.Second,
			SMTP:                alerting.SMTPSender{Port: 587},
		},
		Retention: retention.Config{
			SamplesDays: retention.DefaultSamplesDays,
			Interval:    retention.DefaultInterval,
		},
		Broadcast: BroadcastConfig{BufferSize: broadcast.DefaultBufferSize},
	}
}

// LoadServerConfig reads path over the defaults. A missing file yields the
// defaults. UPTIX_* environment variables override both.
func LoadServerConfig(path string) (*Config, error) {
	cfg := DefaultServerConfig()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read server config: %w", err)
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse server config: %w", err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("UPTIX_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("UPTIX_DATABASE_PATH")); v != "" {
		cfg.DatabasePath = v
	}
	if v := strings.TrimSpace(os.Getenv("UPTIX_REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
}

func (c *Config) Validate() error {
	switch c.TLSMode {
	case "", "none", "autocert", "manual":
	default:
		return fmt.Errorf("unknown tls_mode %q", c.TLSMode)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}
	if c.Alerts.SuppressionWindow <= 0 {
		return fmt.Errorf("alerts.suppression_window must be positive")
	}
	if c.Alerts.CPUThreshold < 0 || c.Alerts.RAMThreshold < 0 || c.Alerts.DiskThreshold < 0 {
		return fmt.Errorf("alert thresholds must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

func SaveServerConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("open config for writing: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func DefaultServerConfigPath() string {
	switch runtime.GOOS {
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", "Uptix", "hub.toml")
		}
	default:
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".config", "uptix", "hub.toml")
		}
	}
	return "/etc/uptix/hub.toml"
}

func defaultDataPath(name string) string {
	switch runtime.GOOS {
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", "Uptix", name)
		}
	default:
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share", "uptix", name)
		}
	}
	return filepath.Join("/var/lib/uptix", name)
}
