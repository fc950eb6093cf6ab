package db

import (
	"strings"

	"github.com/teranos/autonomy/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed
// database, typically while background loops drain during shutdown.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// The string fallback covers raw database/sql errors that cannot be wrapped at the source.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
