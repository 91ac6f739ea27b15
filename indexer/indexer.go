// Package indexer persists committed protocol events for off-node queries.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nftlend/core/events"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// MaxPageSize bounds every listing query.
	MaxPageSize = 500
)

var ErrUnknownDriver = errors.New("indexer: unknown database driver")

// Open connects to the event database. SQLite is embedded; Postgres takes a
// standard connection URL.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	return gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
}

// Indexer is an events.Emitter that records every event it receives.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu  sync.Mutex
	seq uint64
}

// New migrates db and resumes the sequence from the last stored event.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	var last EventRecord
	err := db.Order("seq desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	return &Indexer{db: db, logger: logger, nowFn: time.Now, seq: last.Seq}, nil
}

// SetNowFunc overrides the clock used for CreatedAt.
func (i *Indexer) SetNowFunc(now func() time.Time) {
	if now != nil {
		i.nowFn = now
	}
}

// Emit implements events.Emitter. Failures are logged and the event dropped.
func (i *Indexer) Emit(evt *events.Event) {
	if _, err := i.Record(evt); err != nil {
		i.logger.Error("index event", "type", evt.Type, "error", err)
	}
}

// Record stores evt and returns the persisted row.
func (i *Indexer) Record(evt *events.Event) (*EventRecord, error) {
	if evt == nil {
		return nil, errors.New("indexer: nil event")
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return nil, err
	}
	rec := &EventRecord{
		ID:         uuid.New(),
		Type:       evt.Type,
		Contract:   firstAttr(evt, "contract", "oldContract"),
		Attributes: string(attrs),
	}
	rec.LoanID = parseLoanID(firstAttr(evt, "loanId", "oldLoanId"))
	rec.RelatedLoanID = parseLoanID(evt.Attr("newLoanId"))

	i.mu.Lock()
	defer i.mu.Unlock()
	rec.Seq = i.seq + 1
	rec.CreatedAt = i.nowFn().UTC()
	if err := i.db.Create(rec).Error; err != nil {
		return nil, err
	}
	i.seq = rec.Seq
	return rec, nil
}

// EventsForLoan lists the events that concern loanID in commit order,
// including refinancings that replaced it or created it.
func (i *Indexer) EventsForLoan(ctx context.Context, loanID uint64) ([]EventRecord, error) {
	var out []EventRecord
	err := i.db.WithContext(ctx).
		Where("loan_id = ? OR related_loan_id = ?", loanID, loanID).
		Order("seq asc").
		Find(&out).Error
	return out, err
}

// EventsOfType lists the newest events of eventType first.
func (i *Indexer) EventsOfType(ctx context.Context, eventType string, limit int) ([]EventRecord, error) {
	var out []EventRecord
	err := i.db.WithContext(ctx).
		Where("type = ?", eventType).
		Order("seq desc").
		Limit(clampLimit(limit)).
		Find(&out).Error
	return out, err
}

// RecentEvents lists the newest events first.
func (i *Indexer) RecentEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	var out []EventRecord
	err := i.db.WithContext(ctx).
		Order("seq desc").
		Limit(clampLimit(limit)).
		Find(&out).Error
	return out, err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func firstAttr(evt *events.Event, keys ...string) string {
	for _, key := range keys {
		if v := evt.Attr(key); v != "" {
			return v
		}
	}
	return ""
}

func parseLoanID(raw string) *uint64 {
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}
