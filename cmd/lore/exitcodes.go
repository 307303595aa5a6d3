package main

// Exit codes.
const (
	ExitSuccess            = 0 // Success
	ExitError              = 1 // General error (invalid arguments, runtime failure)
	ExitConflictUnresolved = 2 // Sync conflict requiring manual resolution
	ExitLockContention     = 3 // Another live process holds the writer lock
)
