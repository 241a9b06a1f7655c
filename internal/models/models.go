package models

import (
	"time"
)

// Severity levels used by update and vulnerability entries. Collectors
// disagree on vocabulary, so unknown values are stored verbatim.
const (
	SeverityInfo = "info"
	SeverityWarn = "warn"
	SeverityCrit = "crit"
)

// DiskUsage represents usage for a single mounted filesystem.
type DiskUsage struct {
	Mount   string   `json:"mount"`
	Used    uint64   `json:"used"`
	Free    uint64   `json:"free"`
	Total   uint64   `json:"total"`
	Percent *float64 `json:"percent"`
}

// UpdateEntry represents one pending OS update reported by a collector.
type UpdateEntry struct {
	Name     string `json:"name"`
	Severity string `json:"severity"` // info, warn, crit
	Note     string `json:"note,omitempty"`
}

// VulnerabilityEntry represents a known vulnerability flagged by a collector.
type VulnerabilityEntry struct {
	Name     string `json:"name"`
	Severity string `json:"severity"` // info, warn, crit
	Note     string `json:"note,omitempty"`
}

// RemediationEntry is a suggested fix attached to a report.
type RemediationEntry struct {
	Title  string `json:"title"`
	Action string `json:"action"`
}

// Report is one host's point-in-time health snapshot as posted by a
// collector. Metric fields that a collector could not sample are nil,
// never zero: scoring treats nil as "unknown, no penalty".
type Report struct {
	ID              string               `json:"id,omitempty"`
	Host            string               `json:"host"`
	IP              string               `json:"ip,omitempty"`
	OS              string               `json:"os,omitempty"`
	Timestamp       time.Time            `json:"timestamp"`
	ReceivedAt      time.Time            `json:"received_at,omitempty"`
	CPUPercent      *float64             `json:"cpu_percent"`
	MemoryUsed      uint64               `json:"memory_used"`
	MemoryTotal     uint64               `json:"memory_total"`
	MemoryPercent   *float64             `json:"memory_percent"`
	Disks           []DiskUsage          `json:"disks"`
	ProcessCount    int                  `json:"process_count"`
	ServicesRunning int                  `json:"services_running"`
	Updates         []UpdateEntry        `json:"updates"`
	Vulnerabilities []VulnerabilityEntry `json:"vulnerabilities"`
	LogBlob         string               `json:"log,omitempty"`
	Remediations    []RemediationEntry   `json:"remediations"`
	Score           *int                 `json:"score"`
}

// HistoryEntry is the trimmed projection of a Report kept for trend charts.
type HistoryEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Host       string    `json:"host"`
	Score      int       `json:"score"`
	CPUPercent *float64  `json:"cpu_percent"`
}

// HostSummary describes one known host for the fleet listing.
type HostSummary struct {
	Host     string    `json:"host"`
	IP       string    `json:"ip,omitempty"`
	OS       string    `json:"os,omitempty"`
	Score    int       `json:"score"`
	LastSeen time.Time `json:"last_seen"`
}

// Scan modes accepted by the orchestrator.
const (
	ScanModePartial = "partial"
	ScanModeFull    = "full"
)

// ScanStatus is the externally visible state of the scan orchestrator.
type ScanStatus struct {
	Running   bool       `json:"running"`
	Mode      string     `json:"mode,omitempty"` // partial, full
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// ActionResult is the synchronous outcome of a remote-control action.
type ActionResult struct {
	Status  string   `json:"status"` // ok, error
	Detail  string   `json:"detail,omitempty"`
	Removed int      `json:"removed,omitempty"`
	Steps   []string `json:"steps,omitempty"`
}

// LogLine is one timestamped message pushed to live-log subscribers.
// Lines are ephemeral: they exist only while in flight.
type LogLine struct {
	Timestamp time.Time `json:"ts"`
	Message   string    `json:"message"`
}
