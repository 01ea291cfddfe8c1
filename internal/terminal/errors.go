package terminal

import "errors"

// Failure taxonomy. Spawn, write and read failures wrap the underlying
// OS error; callers match with errors.Is.
var (
	// ErrNotFound means the identifier resolves to no session.
	ErrNotFound = errors.New("session not found")

	// ErrSessionEnded means the shell process exited before the command
	// could be delivered.
	ErrSessionEnded = errors.New("session has ended")

	// ErrSpawn means the PTY could not be allocated or the shell could
	// not be started. No partial session is left behind.
	ErrSpawn = errors.New("failed to start session")

	// ErrWrite means the command bytes could not be delivered to the PTY.
	ErrWrite = errors.New("failed to write command")

	// ErrRead means an I/O error interrupted the read loop. A timeout is
	// not a read error; it is the normal bound on the loop.
	ErrRead = errors.New("failed to read output")
)
