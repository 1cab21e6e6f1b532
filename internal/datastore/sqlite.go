package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements Interface for SQLite.
type SQLiteStore struct {
	DataStore
	Path string
}

// Open creates the database file if needed, enables foreign keys and
// migrates the schema.
func (store *SQLiteStore) Open() error {
	if store.Path == "" {
		return validationError("sqlite path is empty", "output.sqlite.path")
	}
	if dir := filepath.Dir(store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return dbError(err, "open", "")
		}
	}

	// foreign keys are off by default in SQLite and CASCADE depends on them
	dsn := store.Path + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), store.gormConfig())
	if err != nil {
		return dbError(err, "open", "")
	}
	store.DB = db

	store.log.Info("opened SQLite database")
	return store.migrate()
}
