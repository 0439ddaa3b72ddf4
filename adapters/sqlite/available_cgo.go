//go:build cgo

package sqlite

import (
	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

// Available reports whether the embedded driver is compiled into this build
func Available() bool {
	return true
}
