package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/fishnet-go/internal/datastore"
)

// Migrator copies rows between two opened datastores.
type Migrator struct {
	cfg      Config
	sourceDB *gorm.DB
	targetDB *gorm.DB
	out      io.Writer
}

// MigrationStats tracks export statistics.
type MigrationStats struct {
	StartTime time.Time
	EndTime   time.Time
	Tables    []TableStats
}

// TableStats tracks per-table export statistics.
type TableStats struct {
	Name     string
	Migrated int64
	Skipped  int64
	Errors   int64
	Duration time.Duration
}

// Print writes the export summary to w.
func (s *MigrationStats) Print(w io.Writer) {
	rule := strings.Repeat("-", 70)
	fmt.Fprintln(w, "\n=== Export Summary ===")
	fmt.Fprintf(w, "Duration: %s\n\n", s.EndTime.Sub(s.StartTime).Round(time.Millisecond))

	fmt.Fprintf(w, "%-25s %10s %10s %10s %12s\n", "Table", "Migrated", "Skipped", "Errors", "Duration")
	fmt.Fprintln(w, rule)

	var totalMigrated, totalSkipped, totalErrors int64
	for _, t := range s.Tables {
		fmt.Fprintf(w, "%-25s %10d %10d %10d %12s\n",
			t.Name, t.Migrated, t.Skipped, t.Errors, t.Duration.Round(time.Millisecond))
		totalMigrated += t.Migrated
		totalSkipped += t.Skipped
		totalErrors += t.Errors
	}

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-25s %10d %10d %10d\n", "TOTAL", totalMigrated, totalSkipped, totalErrors)
}

// NewMigrator returns a Migrator for two opened stores.
func NewMigrator(cfg Config, source, target datastore.Interface, out io.Writer) (*Migrator, error) {
	sourceDB, err := gormOf(source)
	if err != nil {
		return nil, err
	}
	targetDB, err := gormOf(target)
	if err != nil {
		return nil, err
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 500
	}
	return &Migrator{cfg: cfg, sourceDB: sourceDB, targetDB: targetDB, out: out}, nil
}

func gormOf(store datastore.Interface) (*gorm.DB, error) {
	var db *gorm.DB
	switch s := store.(type) {
	case *datastore.SQLiteStore:
		db = s.DB
	case *datastore.MySQLStore:
		db = s.DB
	default:
		return nil, fmt.Errorf("unsupported datastore %T", store)
	}
	if db == nil {
		return nil, fmt.Errorf("datastore %s is not open", store.Dialect())
	}
	return db, nil
}

// tables lists the exported tables in dependency order.
var tables = []struct {
	name    string
	model   any
	migrate func(context.Context, *Migrator) (*TableStats, error)
}{
	{"user_profiles", &datastore.UserProfile{}, migrateTable[datastore.UserProfile]},
	{"fish", &datastore.Fish{}, migrateTable[datastore.Fish]},
	{"fish_collections", &datastore.FishCollection{}, migrateTable[datastore.FishCollection]},
}

// Run copies every table.
func (m *Migrator) Run(ctx context.Context) (*MigrationStats, error) {
	stats := &MigrationStats{StartTime: time.Now()}

	if m.isMySQL() {
		if err := m.targetDB.Exec("SET FOREIGN_KEY_CHECKS=0").Error; err != nil {
			return nil, fmt.Errorf("failed to disable foreign key checks: %w", err)
		}
		defer m.targetDB.Exec("SET FOREIGN_KEY_CHECKS=1")
	}

	if m.cfg.Clean {
		if err := m.cleanTables(); err != nil {
			return nil, fmt.Errorf("failed to clean tables: %w", err)
		}
	}

	for _, t := range tables {
		tableStats, err := t.migrate(ctx, m)
		if err != nil {
			return stats, fmt.Errorf("failed to export %s: %w", t.name, err)
		}
		stats.Tables = append(stats.Tables, *tableStats)
	}

	stats.EndTime = time.Now()
	return stats, nil
}

func (m *Migrator) isMySQL() bool {
	return m.targetDB.Dialector.Name() == "mysql"
}

// cleanTables deletes target rows, children first.
func (m *Migrator) cleanTables() error {
	fmt.Fprintln(m.out, "Cleaning target tables...")
	for i := len(tables) - 1; i >= 0; i-- {
		t := tables[i]
		if err := m.targetDB.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(t.model).Error; err != nil {
			return fmt.Errorf("clean %s: %w", t.name, err)
		}
		if m.cfg.Verbose {
			fmt.Fprintf(m.out, "  Cleaned: %s\n", t.name)
		}
	}
	return nil
}

// migrateTable copies one table in batches. Rows whose key already exists in
// the target are counted as skipped.
func migrateTable[T any](ctx context.Context, m *Migrator) (*TableStats, error) {
	start := time.Now()
	stmt := &gorm.Statement{DB: m.sourceDB}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, err
	}
	stats := &TableStats{Name: stmt.Schema.Table}

	var sourceCount int64
	if err := m.sourceDB.WithContext(ctx).Model(new(T)).Count(&sourceCount).Error; err != nil {
		return stats, fmt.Errorf("failed to count source records: %w", err)
	}
	if sourceCount == 0 {
		fmt.Fprintf(m.out, "  %s: no records to export\n", stats.Name)
		stats.Duration = time.Since(start)
		return stats, nil
	}

	var processed int64
	batchNum := 0
	err := m.sourceDB.WithContext(ctx).Model(new(T)).FindInBatches(new([]T), m.cfg.BatchSize, func(tx *gorm.DB, _ int) error {
		batchNum++
		records := tx.Statement.Dest.(*[]T)

		result := m.targetDB.WithContext(ctx).
			Omit(clause.Associations).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(records)
		if result.Error != nil {
			stats.Errors += int64(len(*records))
			fmt.Fprintf(m.out, "  Batch %d error: %v\n", batchNum, result.Error)
			// later batches may still succeed
			return nil //nolint:nilerr // intentional
		}

		stats.Migrated += result.RowsAffected
		stats.Skipped += int64(len(*records)) - result.RowsAffected
		processed += int64(len(*records))

		if m.cfg.Verbose {
			fmt.Fprintf(m.out, "  %s: %d/%d (%.1f%%)\n", stats.Name, processed, sourceCount,
				float64(processed)/float64(sourceCount)*100)
		}
		return nil
	}).Error
	if err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	fmt.Fprintf(m.out, "  %s: completed (%d migrated, %d skipped, %d errors) in %s\n",
		stats.Name, stats.Migrated, stats.Skipped, stats.Errors, stats.Duration.Round(time.Millisecond))
	return stats, nil
}
