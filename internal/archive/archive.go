// Package archive persists ingested reports to Postgres. Archiving is an
// optional extension: the service runs fully in-memory when no DSN is
// configured, and a failed write never rejects an ingest.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pulsewatch/pulsewatch/internal/models"
)

// ErrNotFound reports a missing archived report.
var ErrNotFound = errors.New("archived report not found")

// ReportRecord is the durable row written for every ingested report. The
// full payload is kept as raw JSON next to the queryable columns.
type ReportRecord struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Host       string    `json:"host" gorm:"index;not null"`
	ReceivedAt time.Time `json:"received_at" gorm:"index"`
	Score      int       `json:"score"`
	RawJSON    string    `json:"-" gorm:"type:text"`
}

// Archive wraps the database handle.
type Archive struct {
	DB *gorm.DB
}

// Open connects to Postgres and runs the schema migration.
func Open(dsn string, gormLogger logger.Interface) (*Archive, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to archive database: %w", err)
	}
	if err := db.AutoMigrate(&ReportRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate report records: %w", err)
	}
	return &Archive{DB: db}, nil
}

// Save writes one report. The store calls this on every ingest.
func (a *Archive) Save(report models.Report) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	record := ReportRecord{
		ID:         report.ID,
		Host:       report.Host,
		ReceivedAt: report.ReceivedAt,
		RawJSON:    string(raw),
	}
	if report.Score != nil {
		record.Score = *report.Score
	}

	if result := a.DB.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to archive report: %w", result.Error)
	}
	return nil
}

// Recent lists archived records newest-first, without payloads.
func (a *Archive) Recent(limit, offset int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []ReportRecord
	result := a.DB.
		Select("id", "host", "received_at", "score").
		Order("received_at desc").
		Limit(limit).
		Offset(offset).
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list archived reports: %w", result.Error)
	}
	return records, nil
}

// Get returns one archived report with its full payload decoded.
func (a *Archive) Get(id string) (models.Report, error) {
	var record ReportRecord
	result := a.DB.First(&record, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return models.Report{}, ErrNotFound
		}
		return models.Report{}, fmt.Errorf("failed to load archived report: %w", result.Error)
	}

	var report models.Report
	if err := json.Unmarshal([]byte(record.RawJSON), &report); err != nil {
		return models.Report{}, fmt.Errorf("failed to decode archived report: %w", err)
	}
	return report, nil
}
