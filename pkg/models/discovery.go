package models

import "time"

// LogLevel classifies a discovery log entry.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// DiscoveryLogEntry is one append-only audit record of a probe attempt,
// result or error.
type DiscoveryLogEntry struct {
	ID        int64     `json:"id"`
	SweepID   string    `json:"sweep_id,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Level     LogLevel  `json:"level"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// SweepStatus is the lifecycle of a sweep.
type SweepStatus string

const (
	SweepRunning   SweepStatus = "running"
	SweepCompleted SweepStatus = "completed"
	SweepCancelled SweepStatus = "cancelled"
	SweepFailed    SweepStatus = "failed"
)

// Sweep is one pass over a set of ranges.
type Sweep struct {
	ID          string      `json:"id"`
	Ranges      []string    `json:"ranges"`
	Status      SweepStatus `json:"status"`
	HostsTotal  int         `json:"hosts_total"`
	Responded   int         `json:"responded"`
	Created     int         `json:"created"`
	Offline     int         `json:"marked_offline"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Neighbor is an adjacency learned from LLDP or MNDP.
type Neighbor struct {
	ID              string          `json:"id"`
	DeviceID        string          `json:"device_id"`
	Protocol        DiscoveryMethod `json:"protocol"`
	LocalInterface  string          `json:"local_interface,omitempty"`
	RemoteName      string          `json:"remote_name"`
	RemoteInterface string          `json:"remote_interface,omitempty"`
	RemoteAddress   string          `json:"remote_address,omitempty"`
	RemoteMAC       string          `json:"remote_mac,omitempty"`
	RemotePlatform  string          `json:"remote_platform,omitempty"`
	LastSeen        time.Time       `json:"last_seen"`
}

// GitDeployment records one snapshot export and its commit.
type GitDeployment struct {
	ID         int64     `json:"id"`
	CommitHash string    `json:"commit_hash,omitempty"`
	Devices    int       `json:"devices"`
	Pushed     bool      `json:"pushed"`
	Status     string    `json:"status"` // committed, unchanged, failed
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
