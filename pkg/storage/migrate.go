package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// OpenMigrator opens the coordinator database under dataDir and returns a
// migrator over the embedded schema, plus a close func for the underlying
// handle. Unlike NewSQLiteStore it never applies migrations on its own.
func OpenMigrator(dataDir string) (*migrate.Migrate, func() error, error) {
	dbPath := filepath.Join(dataDir, "chorus.db")

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	driver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to init migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to init migrator: %w", err)
	}
	return m, db.Close, nil
}
