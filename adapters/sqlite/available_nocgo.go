//go:build !cgo

package sqlite

const driverName = "sqlite3"

// Available reports whether the embedded driver is compiled into this build.
// The driver needs cgo, so builds with CGO_ENABLED=0 cannot open databases.
func Available() bool {
	return false
}
