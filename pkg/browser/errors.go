package browser

import "errors"

var (
	// ErrNoActiveSession is returned by every operation except discovery
	// when no session is open.
	ErrNoActiveSession = errors.New("no active browser session")

	// ErrIndexOutOfRange is returned when an identifier cannot be parsed or
	// its ordinal exceeds the snapshot it refers to.
	ErrIndexOutOfRange = errors.New("element index out of range")

	// ErrStaleSnapshot is returned when an identifier refers to a snapshot
	// taken before the page last navigated.
	ErrStaleSnapshot = errors.New("element snapshot is stale, discover the page again")

	// ErrNotFound is returned when a targeted heading or table does not exist.
	ErrNotFound = errors.New("element not found")

	// ErrTimeout marks a bounded wait that elapsed.
	ErrTimeout = errors.New("wait timed out")
)
