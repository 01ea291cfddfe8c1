package terminal

import (
	"os"
	"os/exec"
	"sync"
	"time"
)

// State describes where a session is in its lifecycle. Closed sessions are
// removed from the collection rather than flagged, so it never appears in
// a SessionInfo.
type State string

const (
	// StateActive means the shell is running and the PTY handle is valid.
	StateActive State = "active"

	// StateEnded means the shell exited on its own; the entry remains
	// until CloseSession releases it.
	StateEnded State = "ended"
)

// Config controls shell spawning and command execution defaults.
type Config struct {
	// Shell is the interactive shell to spawn. Empty means $SHELL,
	// falling back to /bin/bash.
	Shell string

	// SettleDelay is a fixed pause after spawn that lets the shell finish
	// its startup output before the first command. Pragmatic mitigation,
	// not a correctness guarantee.
	SettleDelay time.Duration

	// PollInterval is the read-deadline slice used by the read loop so a
	// single Read never blocks longer than this.
	PollInterval time.Duration

	// CommandTimeout bounds ExecuteCommand when the caller passes a
	// non-positive timeout.
	CommandTimeout time.Duration

	// GracePeriod is how long CloseSession waits after SIGTERM before
	// escalating to SIGKILL.
	GracePeriod time.Duration

	// PromptTerminators is the set of runes a trimmed line may end with
	// to be treated as a shell prompt and dropped during normalization.
	PromptTerminators string
}

// DefaultConfig returns production defaults mirroring a plain interactive
// bash setup.
func DefaultConfig() Config {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}
	return Config{
		Shell:             shell,
		SettleDelay:       100 * time.Millisecond,
		PollInterval:      100 * time.Millisecond,
		CommandTimeout:    5 * time.Second,
		GracePeriod:       2 * time.Second,
		PromptTerminators: "$#",
	}
}

// Session pairs an interactive shell process with the master side of its
// PTY. Both are exclusively owned by the session; the one release path is
// Manager.CloseSession.
type Session struct {
	ID        string
	Shell     string
	StartedAt time.Time

	cmd  *exec.Cmd
	ptmx *os.File

	// execMu serializes ExecuteCommand so at most one command is in
	// flight per session; a second concurrent caller would otherwise read
	// interleaved, unattributable output.
	execMu sync.Mutex

	// done is closed by the reaper goroutine once the shell has exited
	// and been waited on.
	done chan struct{}
}

// reap waits on the shell so it never lingers as a zombie and records the
// exit for lazy detection by ExecuteCommand.
func (s *Session) reap() {
	s.cmd.Wait()
	close(s.done)
}

// ended reports whether the shell process has exited, without blocking.
func (s *Session) ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// state derives the lifecycle state from the reaper signal.
func (s *Session) state() State {
	if s.ended() {
		return StateEnded
	}
	return StateActive
}

// SessionInfo is the public snapshot of a session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Shell     string    `json:"shell"`
	StartedAt time.Time `json:"started_at"`
	State     State     `json:"state"`
}

// Result is the outcome of one successful ExecuteCommand call.
//
// Stderr is always empty because the PTY fuses the shell's stdout and
// stderr into one stream, and ExitCode is a fixed placeholder: the PTY
// model has no per-command exit-code channel, so none is fabricated.
// Success=true with an empty Stdout means "no output observed within the
// timeout", which is indistinguishable from "command produced nothing".
type Result struct {
	Success   bool   `json:"success"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  int    `json:"exit_code"`
	SessionID string `json:"session_id"`
}
