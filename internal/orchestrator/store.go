package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wealthops/wealthops-backend/internal/copilot"
	"github.com/wealthops/wealthops-backend/internal/platform/logger"
)

// QueryRun is the persisted audit record for one answered copilot query.
type QueryRun struct {
	ID              string         `gorm:"primaryKey;type:text"`
	Query           string         `gorm:"not null"`
	HouseholdID     string         `gorm:"index"`
	Intent          string         `gorm:"index"`
	Answer          string
	SQLGenerated    string
	ExecutionTimeMs int
	AgentCalls      datatypes.JSON
	Citations       datatypes.JSON
	CreatedAt       time.Time
}

// Store records answered queries for audit. It is optional wiring; a nil
// Store disables auditing without touching the pipeline.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string
	DSN    string
}

func NewStore(cfg StoreConfig, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNop()
	}

	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite":
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			dsn = "wealthops_audit.db"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("postgres store requires a DSN")
		}
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	if err := db.AutoMigrate(&QueryRun{}); err != nil {
		return nil, fmt.Errorf("migrate audit store: %w", err)
	}

	return &Store{
		db:  db,
		log: log.With("component", "AuditStore"),
	}, nil
}

// RecordQuery persists one answered query.
func (s *Store) RecordQuery(ctx context.Context, correlationID string, req copilot.QueryRequest, intent Intent, result copilot.QueryResult) error {
	agentCalls, err := json.Marshal(result.AgentCalls)
	if err != nil {
		return err
	}
	citations, err := json.Marshal(result.Citations)
	if err != nil {
		return err
	}

	run := QueryRun{
		ID:              correlationID,
		Query:           req.Query,
		HouseholdID:     req.HouseholdID,
		Intent:          string(intent),
		Answer:          result.Answer,
		SQLGenerated:    result.SQLGenerated,
		ExecutionTimeMs: result.ExecutionTimeMs,
		AgentCalls:      datatypes.JSON(agentCalls),
		Citations:       datatypes.JSON(citations),
		CreatedAt:       time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(&run).Error
}

// RecentQueries returns the most recent audit records, newest first.
func (s *Store) RecentQueries(ctx context.Context, limit int) ([]QueryRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []QueryRun
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
