package crawler

import "errors"

// Scheduler errors.
var (
	// ErrInvalidThreads is returned when the worker count is outside 1-100.
	ErrInvalidThreads = errors.New("threads must be between 1 and 100")

	// ErrAlreadyRunning is returned when Run is called while a run is active.
	ErrAlreadyRunning = errors.New("scheduler is already running")

	// ErrCursorLoop is returned when a backend hands back the cursor it was
	// given, which would page forever.
	ErrCursorLoop = errors.New("backend returned the same cursor again")
)
