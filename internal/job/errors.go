package job

import "errors"

// Terminal outcomes of a run. They never reach the launcher's caller; they
// end up in the Register and in the worker's log line.
var (
	ErrSecurityNotFound = errors.New("security not found")
	ErrFetch            = errors.New("fetch failed")
	ErrPersist          = errors.New("persist failed")
	ErrCancelled        = errors.New("import cancelled")

	// ErrNoData is a successful run that found nothing to import.
	ErrNoData = errors.New("no data")

	errNoQuote = errors.New("could not fetch current price")
)
