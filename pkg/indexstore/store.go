package indexstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/splidsboel/assignment3/pkg/config"
)

// ErrNotFound is returned when a run is not in the index.
var ErrNotFound = errors.New("run not found")

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Source string
	Status string
	Limit  int
}

// Store provides persistence for the indexed experiment data.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	UpsertRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, source, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	ListRunIDs(ctx context.Context, source string) ([]string, error)
	ListIncompleteRunIDs(ctx context.Context, source string) ([]string, error)
	DeleteRun(ctx context.Context, source, runID string) error

	ReplaceSummaries(
		ctx context.Context, source, runID string, summaries []*AlgorithmSummary,
	) error
	ListSummaries(ctx context.Context, source, runID string) ([]AlgorithmSummary, error)
	ListSummariesByLabel(ctx context.Context, label string) ([]AlgorithmSummary, error)
}

var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new index Store backed by the configured database driver.
func NewStore(log logrus.FieldLogger, cfg *config.DatabaseConfig) Store {
	return &store{
		log: log.WithField("component", "indexstore"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return fmt.Errorf("opening index database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&Run{}, &AlgorithmSummary{}); err != nil {
		return fmt.Errorf("running index migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Index database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// UpsertRun inserts a run or overwrites the row with the same
// source + run_id.
func (s *store) UpsertRun(ctx context.Context, run *Run) error {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "source"}, {Name: "run_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"timestamp", "timestamp_end", "status", "termination_reason",
				"seed", "pairs", "remap", "backend", "solver_image", "hostname",
				"algorithms", "has_summaries", "labels_json", "reindexed_at",
			}),
		}).
		Create(run)
	if result.Error != nil {
		return fmt.Errorf("upserting run: %w", result.Error)
	}

	return nil
}

func (s *store) GetRun(ctx context.Context, source, runID string) (*Run, error) {
	query := s.db.WithContext(ctx).Where("run_id = ?", runID)
	if source != "" {
		query = query.Where("source = ?", source)
	}

	var run Run
	if err := query.Order("timestamp DESC").First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("getting run: %w", err)
	}

	return &run, nil
}

// ListRuns returns the runs matching filter, newest first.
func (s *store) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := s.db.WithContext(ctx).Order("timestamp DESC")

	if filter.Source != "" {
		query = query.Where("source = ?", filter.Source)
	}

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var runs []Run
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// ListRunIDs returns just the run IDs for a given source.
func (s *store) ListRunIDs(ctx context.Context, source string) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&Run{}).
		Where("source = ?", source).
		Pluck("run_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing run ids: %w", err)
	}

	return ids, nil
}

// terminalStatuses are run statuses that will not change.
var terminalStatuses = []string{"completed", "failed", "cancelled"}

// ListIncompleteRunIDs returns run IDs whose summaries have not been
// indexed and whose status may still change.
func (s *store) ListIncompleteRunIDs(ctx context.Context, source string) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&Run{}).
		Where("source = ? AND has_summaries = ? AND status NOT IN ?",
			source, false, terminalStatuses).
		Pluck("run_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing incomplete run ids: %w", err)
	}

	return ids, nil
}

// DeleteRun removes a run and its summaries.
func (s *store) DeleteRun(ctx context.Context, source, runID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source = ? AND run_id = ?", source, runID).
			Delete(&AlgorithmSummary{}).Error; err != nil {
			return fmt.Errorf("deleting summaries: %w", err)
		}

		if err := tx.Where("source = ? AND run_id = ?", source, runID).
			Delete(&Run{}).Error; err != nil {
			return fmt.Errorf("deleting run: %w", err)
		}

		return nil
	})
}

// ReplaceSummaries swaps the stored summaries of a run in one transaction.
func (s *store) ReplaceSummaries(
	ctx context.Context, source, runID string, summaries []*AlgorithmSummary,
) error {
	const batchSize = 100

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source = ? AND run_id = ?", source, runID).
			Delete(&AlgorithmSummary{}).Error; err != nil {
			return fmt.Errorf("deleting summaries: %w", err)
		}

		if len(summaries) == 0 {
			return nil
		}

		for _, sum := range summaries {
			sum.ID = 0
			sum.Source = source
			sum.RunID = runID
		}

		if err := tx.CreateInBatches(summaries, batchSize).Error; err != nil {
			return fmt.Errorf("inserting summaries: %w", err)
		}

		return nil
	})
}

// ListSummaries returns the summaries of one run ordered by label.
func (s *store) ListSummaries(
	ctx context.Context, source, runID string,
) ([]AlgorithmSummary, error) {
	query := s.db.WithContext(ctx).Where("run_id = ?", runID)
	if source != "" {
		query = query.Where("source = ?", source)
	}

	var summaries []AlgorithmSummary
	if err := query.Order("id ASC").Find(&summaries).Error; err != nil {
		return nil, fmt.Errorf("listing summaries: %w", err)
	}

	return summaries, nil
}

// ListSummariesByLabel returns the summaries of one algorithm label across
// every indexed run.
func (s *store) ListSummariesByLabel(
	ctx context.Context, label string,
) ([]AlgorithmSummary, error) {
	var summaries []AlgorithmSummary
	if err := s.db.WithContext(ctx).
		Where("label = ?", label).
		Order("run_id ASC").
		Find(&summaries).Error; err != nil {
		return nil, fmt.Errorf("listing summaries by label: %w", err)
	}

	return summaries, nil
}
