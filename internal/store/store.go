// Package store holds the in-memory fleet state: the most recent report
// per host plus a bounded global history used for trend charts.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/internal/models"
	"github.com/pulsewatch/pulsewatch/internal/score"
)

var (
	// ErrValidation reports a malformed report at ingest.
	ErrValidation = errors.New("invalid report")
	// ErrNotFound reports an empty store or an unknown host.
	ErrNotFound = errors.New("no report found")
)

// DefaultHistoryCapacity bounds the global history buffer when the
// configuration does not say otherwise.
const DefaultHistoryCapacity = 200

// Archiver is an optional durable sink fed on every ingest. A nil
// Archiver disables archiving; failures never reject the ingest.
type Archiver interface {
	Save(report models.Report) error
}

// Store is the concurrency-safe report store. Reads never observe a
// partially written report: each ingest happens under the write lock.
type Store struct {
	mu       sync.RWMutex
	latest   map[string]models.Report
	history  []models.HistoryEntry
	capacity int

	archive Archiver
	logger  *zap.Logger
}

// New creates a store with the given history capacity. Capacity values
// below 1 fall back to DefaultHistoryCapacity.
func New(capacity int, archive Archiver, logger *zap.Logger) *Store {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		latest:   make(map[string]models.Report),
		capacity: capacity,
		archive:  archive,
		logger:   logger,
	}
}

// Ingest validates, scores and stores a report. Out-of-range scores are
// clamped, not rejected; a missing score is computed server-side. The
// stored report is immutable from the caller's point of view.
func (s *Store) Ingest(report models.Report) (models.Report, error) {
	if report.Host == "" {
		return models.Report{}, fmt.Errorf("%w: host is required", ErrValidation)
	}

	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now().UTC()
	}
	report.ReceivedAt = time.Now().UTC()
	report.ID = uuid.NewString()

	final := score.Compute(report)
	if report.Score != nil {
		final = score.Clamp(*report.Score)
	}
	report.Score = &final

	entry := models.HistoryEntry{
		Timestamp:  report.Timestamp,
		Host:       report.Host,
		Score:      final,
		CPUPercent: report.CPUPercent,
	}

	s.mu.Lock()
	s.latest[report.Host] = report
	s.history = append(s.history, entry)
	if len(s.history) > s.capacity {
		s.history = s.history[len(s.history)-s.capacity:]
	}
	s.mu.Unlock()

	if s.archive != nil {
		if err := s.archive.Save(report); err != nil {
			s.logger.Warn("report archive failed",
				zap.String("host", report.Host),
				zap.Error(err))
		}
	}

	s.logger.Debug("report ingested",
		zap.String("host", report.Host),
		zap.Int("score", final))
	return report, nil
}

// Latest returns the most recently received report, or the one for a
// specific host if host is non-empty.
func (s *Store) Latest(host string) (models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if host != "" {
		report, ok := s.latest[host]
		if !ok {
			return models.Report{}, fmt.Errorf("%w: host %q", ErrNotFound, host)
		}
		return report, nil
	}

	var newest models.Report
	found := false
	for _, report := range s.latest {
		if !found || report.ReceivedAt.After(newest.ReceivedAt) {
			newest = report
			found = true
		}
	}
	if !found {
		return models.Report{}, ErrNotFound
	}
	return newest, nil
}

// History returns up to limit of the most recent entries, oldest first.
// The limit is silently clamped to what is available.
func (s *Store) History(limit int) []models.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]models.HistoryEntry, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}

// Hosts lists every known host with its last-seen time, sorted by name.
func (s *Store) Hosts() []models.HostSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.HostSummary, 0, len(s.latest))
	for _, report := range s.latest {
		summary := models.HostSummary{
			Host:     report.Host,
			IP:       report.IP,
			OS:       report.OS,
			LastSeen: report.ReceivedAt,
		}
		if report.Score != nil {
			summary.Score = *report.Score
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}
