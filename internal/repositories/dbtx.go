package repositories

import (
	"database/sql"
)

// DBTX is the subset of database/sql used by repositories. It is
// satisfied by both *sql.DB and *sql.Tx, so the sync engine can run
// per-PR mutations inside a single transaction with the same
// repository code.
type DBTX interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}
