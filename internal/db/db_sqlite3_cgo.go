//go:build cgo && sqlite3_cgo

package db

// cgo builds opt into the C SQLite amalgamation with -tags sqlite3_cgo
import _ "github.com/mattn/go-sqlite3"

const (
	driverID   = "mattn/go-sqlite3"
	driverName = "sqlite3"
)
