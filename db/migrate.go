package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/sym"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// MigrationFiles returns the embedded migration file names in apply order.
func MigrationFiles() ([]string, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Migrate runs all pending migrations. Each file runs in its own transaction
// and is recorded in schema_migrations by its numeric prefix.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	files, err := MigrationFiles()
	if err != nil {
		return err
	}

	applied := 0
	for _, filename := range files {
		version := strings.SplitN(filename, "_", 2)[0]

		done, err := isApplied(db, version)
		if err != nil {
			return errors.Wrapf(err, "check %s", filename)
		}
		if done {
			if logger != nil {
				logger.Debugw("Skipping migration (already applied)", "migration", filename)
			}
			continue
		}

		if err := applyMigration(db, filename, version); err != nil {
			return err
		}
		applied++

		if logger != nil {
			logger.Infow("Applied migration", "migration", filename, "version", version)
		}
	}

	if logger != nil {
		logger.Infow("Migrations complete",
			"symbol", sym.DB,
			"applied", applied,
			"total_migrations", len(files),
		)
	}

	return nil
}

// isApplied reports whether version is recorded. A missing schema_migrations
// table is only acceptable before migration 000 has run.
func isApplied(db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists)
	if err != nil {
		if version == "000" {
			return false, nil
		}
		return false, errors.Wrapf(err, "schema_migrations table missing before migration %s", version)
	}
	return exists, nil
}

func applyMigration(db *sql.DB, filename, version string) error {
	sqlBytes, err := migrations.ReadFile(path.Join(migrationsDir, filename))
	if err != nil {
		return errors.Wrapf(err, "read %s", filename)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", filename)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(sqlBytes)); err != nil {
		return errors.Wrapf(err, "execute %s", filename)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return errors.Wrapf(err, "record %s", filename)
	}

	return errors.Wrapf(tx.Commit(), "commit %s", filename)
}
