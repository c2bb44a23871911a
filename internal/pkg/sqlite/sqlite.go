// Package sqlite registers the pure-Go sqlite driver under the
// conventional "sqlite3" name, so DSNs written for mattn/go-sqlite3
// keep working without cgo.
package sqlite

import (
	"database/sql"

	"modernc.org/sqlite"
)

func init() {
	sql.Register("sqlite3", &sqlite.Driver{})
}
