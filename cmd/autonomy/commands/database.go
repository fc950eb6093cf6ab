package commands

import (
	"database/sql"

	"github.com/teranos/autonomy/am"
	"github.com/teranos/autonomy/db"
	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/logger"
)

// openDatabase opens and migrates a database using the specified path.
// If dbPath is empty, it uses database.path from am config.
func openDatabase(dbPath string) (*sql.DB, string, error) {
	if dbPath == "" {
		cfg, err := am.Load()
		if err != nil {
			return nil, "", errors.Wrap(err, "failed to load config")
		}
		dbPath = cfg.GetDatabasePath()
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, dbPath, nil
}
