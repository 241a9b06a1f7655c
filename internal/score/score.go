// Package score implements the health heuristic applied to ingested
// reports. It is deliberately a pure function over the report payload so
// the thresholds can be tested without any OS data collection behind them.
package score

import (
	"github.com/pulsewatch/pulsewatch/internal/models"
)

// Penalty thresholds. A nil metric is unknown and applies no penalty.
const (
	cpuHighThreshold = 90.0
	cpuWarnThreshold = 75.0
	cpuHighPenalty   = 25
	cpuWarnPenalty   = 10

	memHighThreshold = 90.0
	memWarnThreshold = 80.0
	memHighPenalty   = 20
	memWarnPenalty   = 10

	diskHighThreshold = 95.0
	diskWarnThreshold = 85.0
	diskHighPenalty   = 15
	diskWarnPenalty   = 5
	diskPenaltyCap    = 30

	critUpdatePenalty = 5
	critUpdateCap     = 15

	critVulnPenalty = 10
	critVulnCap     = 30
)

// Clamp forces a score into the [0,100] range.
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Compute derives a health score in [0,100] from a report. Higher is
// healthier. Reports with no sampled metrics score a clean 100.
func Compute(r models.Report) int {
	score := 100

	if r.CPUPercent != nil {
		switch {
		case *r.CPUPercent >= cpuHighThreshold:
			score -= cpuHighPenalty
		case *r.CPUPercent >= cpuWarnThreshold:
			score -= cpuWarnPenalty
		}
	}

	if r.MemoryPercent != nil {
		switch {
		case *r.MemoryPercent >= memHighThreshold:
			score -= memHighPenalty
		case *r.MemoryPercent >= memWarnThreshold:
			score -= memWarnPenalty
		}
	}

	diskPenalty := 0
	for _, d := range r.Disks {
		if d.Percent == nil {
			continue
		}
		switch {
		case *d.Percent >= diskHighThreshold:
			diskPenalty += diskHighPenalty
		case *d.Percent >= diskWarnThreshold:
			diskPenalty += diskWarnPenalty
		}
	}
	if diskPenalty > diskPenaltyCap {
		diskPenalty = diskPenaltyCap
	}
	score -= diskPenalty

	updatePenalty := 0
	for _, u := range r.Updates {
		if u.Severity == models.SeverityCrit {
			updatePenalty += critUpdatePenalty
		}
	}
	if updatePenalty > critUpdateCap {
		updatePenalty = critUpdateCap
	}
	score -= updatePenalty

	vulnPenalty := 0
	for _, v := range r.Vulnerabilities {
		if v.Severity == models.SeverityCrit {
			vulnPenalty += critVulnPenalty
		}
	}
	if vulnPenalty > critVulnCap {
		vulnPenalty = critVulnCap
	}
	score -= vulnPenalty

	return Clamp(score)
}
