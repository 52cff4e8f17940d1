package models

import (
	"encoding/json"
	"time"
)

// Report is sent by an agent on every reporting interval, either as the
// data of an "agent_metrics" socket event or as the body of POST /api/v1/report.
// Gauges are pointers so a missing field can be told apart from a zero reading.
type Report struct {
	ServerName string       `json:"server_name"`
	CPUUsage   *float64     `json:"cpu_usage"`
	RAMUsage   *float64     `json:"ram_usage"`
	DiskUsage  *float64     `json:"disk_usage"`
	Sites      []SiteReport `json:"sites"`
}

// UnmarshalJSON decodes a report leniently: a sites field that is missing,
// null or not a list of {url, status} objects decodes to an empty list
// instead of failing the whole report.
func (r *Report) UnmarshalJSON(data []byte) error {
	var raw struct {
		ServerName string          `json:"server_name"`
		CPUUsage   *float64        `json:"cpu_usage"`
		RAMUsage   *float64        `json:"ram_usage"`
		DiskUsage  *float64        `json:"disk_usage"`
		Sites      json.RawMessage `json:"sites"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ServerName = raw.ServerName
	r.CPUUsage = raw.CPUUsage
	r.RAMUsage = raw.RAMUsage
	r.DiskUsage = raw.DiskUsage
	r.Sites = nil
	if len(raw.Sites) > 0 {
		var sites []SiteReport
		if err := json.Unmarshal(raw.Sites, &sites); err == nil {
			r.Sites = sites
		}
	}
	return nil
}

// SiteReport is one endpoint check result inside a report.
type SiteReport struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

// StatusUp is the only site status with special meaning; every other value
// is carried through as an opaque string.
const StatusUp = "UP"

// Gauges are the host-level readings of a report, in percent.
type Gauges struct {
	CPU  float64
	RAM  float64
	Disk float64
}

// Host is a monitored machine, identified by its unique name.
type Host struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	IsMaintenance bool      `json:"is_maintenance"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

// HostWithSample is a host with its most recent sample attached.
type HostWithSample struct {
	Host
	LatestSample *Sample `json:"latest_sample,omitempty"`
}

// Sample is a single point-in-time gauge reading. Samples are append-only.
type Sample struct {
	ID         int64     `json:"id,omitempty"`
	HostID     string    `json:"host_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
	CPUUsage   float64   `json:"cpu_usage"`
	RAMUsage   float64   `json:"ram_usage"`
	DiskUsage  float64   `json:"disk_usage"`
}

// Site is the stored state of an endpoint monitored by a host.
type Site struct {
	ID          int64     `json:"-"`
	HostID      string    `json:"-"`
	URL         string    `json:"url"`
	Status      string    `json:"status"`
	LastCheckAt time.Time `json:"last_check"`
}

// SiteResult is the outcome of reconciling one reported site against its
// stored state. PreviousStatus is nil when the site was first seen.
type SiteResult struct {
	URL            string
	Status         string
	PreviousStatus *string
}

// Transitioned reports whether the site changed status since the last report.
func (r SiteResult) Transitioned() bool {
	return r.PreviousStatus != nil && *r.PreviousStatus != r.Status
}

// Alert categories.
const (
	CategorySite = "site"
	CategoryCPU  = "cpu"
	CategoryRAM  = "ram"
	CategoryDisk = "disk"
)

// AlertIntent is a decision that an alert must be sent. Site intents carry
// Target/From/To; threshold intents carry Value/Threshold.
type AlertIntent struct {
	Category  string  `json:"category"`
	Target    string  `json:"target,omitempty"`
	From      string  `json:"from,omitempty"`
	To        string  `json:"to,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// Notification is a formatted alert handed to the transport.
type Notification struct {
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	HostName string    `json:"host"`
	Category string    `json:"category"`
	FiredAt  time.Time `json:"fired_at"`
}

// Socket event names.
const (
	EventAgentMetrics      = "agent_metrics"
	EventMetricsUpdate     = "metrics_update"
	EventMaintenanceUpdate = "maintenance_update"
)

// Event is the envelope of every socket message in either direction.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Snapshot is the canonical state of a host after a report was ingested.
type Snapshot struct {
	ServerID      string    `json:"serverId"`
	ServerName    string    `json:"serverName"`
	CPUUsage      float64   `json:"cpu_usage"`
	RAMUsage      float64   `json:"ram_usage"`
	DiskUsage     float64   `json:"disk_usage"`
	Sites         []Site    `json:"sites"`
	IsMaintenance bool      `json:"is_maintenance"`
	Timestamp     time.Time `json:"timestamp"`
}

// MaintenanceUpdate is broadcast when a host's maintenance flag is toggled.
type MaintenanceUpdate struct {
	ServerID      string    `json:"serverId"`
	ServerName    string    `json:"serverName"`
	IsMaintenance bool      `json:"is_maintenance"`
	Timestamp     time.Time `json:"timestamp"`
}

// MaintenanceRequest toggles maintenance mode for a host.
type MaintenanceRequest struct {
	IsMaintenance *bool `json:"is_maintenance"`
}

// MaintenanceResponse echoes the applied flag.
type MaintenanceResponse struct {
	ID            string `json:"id"`
	IsMaintenance bool   `json:"is_maintenance"`
}

type LoginRequest struct {
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session is an issued dashboard/API token.
type Session struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
