package terminal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/edgeterm/edgeterm/internal/infrastructure/logging"
	"github.com/edgeterm/edgeterm/internal/infrastructure/monitoring"
	"github.com/edgeterm/edgeterm/internal/shared/id"
)

// Manager owns the collection of active shell sessions. It is the single
// source of truth: no session is reachable except through it. The manager
// is safe for concurrent use; operations on distinct sessions proceed
// independently while structural mutations are mutually exclusive.
type Manager struct {
	cfg     Config
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager with the given configuration.
func NewManager(cfg Config, log *logging.Logger) *Manager {
	if cfg.Shell == "" {
		cfg.Shell = DefaultConfig().Shell
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultConfig().SettleDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultConfig().CommandTimeout
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultConfig().GracePeriod
	}
	if cfg.PromptTerminators == "" {
		cfg.PromptTerminators = DefaultConfig().PromptTerminators
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// WithMetrics attaches a metrics collector.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// CreateSession spawns an interactive shell attached to a fresh PTY and
// registers it under sessionID. An empty sessionID gets a generated one.
// Registration is a swap under the manager lock: any session already held
// under the identifier, including one racing this call, is displaced and
// terminated. Creation is destructive-replace, never silent aliasing.
func (m *Manager) CreateSession(sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = string(id.NewSessionID())
	}

	cmd := exec.Command(m.cfg.Shell, "-i")
	// TERM=dumb keeps the shell from emitting cursor and title escapes
	// that would pollute the captured stream.
	cmd.Env = append(os.Environ(), "TERM=dumb")

	// pty.Start hands the slave side to the child as its controlling
	// terminal in a new session (setsid), then closes the slave in the
	// parent. Only the master handle is retained.
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	s := &Session{
		ID:        sessionID,
		Shell:     m.cfg.Shell,
		StartedAt: time.Now(),
		cmd:       cmd,
		ptmx:      ptmx,
		done:      make(chan struct{}),
	}
	go s.reap()

	m.mu.Lock()
	old := m.sessions[sessionID]
	m.sessions[sessionID] = s
	m.mu.Unlock()

	// A displaced session has left the collection and would otherwise
	// leak its shell and PTY handle.
	if old != nil {
		m.terminate(old)
		m.log.Info("Replaced terminal session", zap.String("session_id", sessionID))
		if m.metrics != nil {
			m.metrics.SessionClosed()
		}
	}

	// Let the shell finish its startup output before the first command.
	time.Sleep(m.cfg.SettleDelay)

	m.log.Info("Created terminal session",
		zap.String("session_id", sessionID),
		zap.String("shell", m.cfg.Shell),
		zap.Int("pid", cmd.Process.Pid),
	)
	if m.metrics != nil {
		m.metrics.SessionOpened()
	}

	return sessionID, nil
}

// ExecuteCommand writes command to the session's PTY and accumulates
// output until the wall-clock timeout expires or the stream closes. The
// raw capture is reduced by the normalization pass before being returned.
//
// A non-positive timeout selects the configured default. Expiry of the
// timeout is success with whatever was captured; there is no end-of-
// response marker in a PTY stream, so the bound is the only framing.
func (m *Manager) ExecuteCommand(sessionID, command string, timeout time.Duration) (*Result, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		m.recordCommand("not_found", 0)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	s.execMu.Lock()
	defer s.execMu.Unlock()

	if s.ended() {
		m.recordCommand("ended", 0)
		return nil, fmt.Errorf("%w: %s", ErrSessionEnded, sessionID)
	}
	if timeout <= 0 {
		timeout = m.cfg.CommandTimeout
	}

	start := time.Now()
	if _, err := s.ptmx.Write([]byte(command + "\n")); err != nil {
		m.recordCommand("write_error", time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	raw, err := m.collect(s, timeout)
	if err != nil {
		// Partial output is discarded; the caller re-issues.
		m.recordCommand("read_error", time.Since(start))
		m.log.Warn("Read loop failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, err
	}

	m.recordCommand("ok", time.Since(start))
	return &Result{
		Success:   true,
		Stdout:    Normalize(raw, command, m.cfg.PromptTerminators),
		Stderr:    "", // the PTY fuses stdout and stderr
		ExitCode:  0,  // placeholder: no per-command exit channel exists
		SessionID: sessionID,
	}, nil
}

// collect runs the timeout-bounded read loop. Each Read carries a short
// deadline slice so the loop can re-check the wall clock; a deadline miss
// is an idle gap, not a failure. A zero-byte read, EOF or EIO means the
// slave side is gone and the loop stops with what it has.
func (m *Manager) collect(s *Session, timeout time.Duration) (string, error) {
	var acc bytes.Buffer
	buf := make([]byte, 4096)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		slice := time.Until(deadline)
		if slice > m.cfg.PollInterval {
			slice = m.cfg.PollInterval
		}
		if err := s.ptmx.SetReadDeadline(time.Now().Add(slice)); err != nil {
			return "", fmt.Errorf("%w: %v", ErrRead, err)
		}

		n, err := s.ptmx.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
		}
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			// Linux reports EIO on the master once the shell exits.
			if errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) {
				break
			}
			return "", fmt.Errorf("%w: %v", ErrRead, err)
		}
		if n == 0 {
			break
		}
	}

	return acc.String(), nil
}

// CloseSession terminates the session's shell and releases its PTY handle.
// It reports false for an unknown identifier, making it idempotent. The
// entry is removed before any teardown so no concurrent caller can observe
// a half-closed session.
func (m *Manager) CloseSession(sessionID string) bool {
	s := m.take(sessionID)
	if s == nil {
		return false
	}
	m.terminate(s)

	m.log.Info("Closed terminal session", zap.String("session_id", sessionID))
	if m.metrics != nil {
		m.metrics.SessionClosed()
	}
	return true
}

// GetSession returns a snapshot of one session.
func (m *Manager) GetSession(sessionID string) (*SessionInfo, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return &SessionInfo{
		ID:        s.ID,
		Shell:     s.Shell,
		StartedAt: s.StartedAt,
		State:     s.state(),
	}, nil
}

// ListSessions returns snapshots of every registered session.
func (m *Manager) ListSessions() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, SessionInfo{
			ID:        s.ID,
			Shell:     s.Shell,
			StartedAt: s.StartedAt,
			State:     s.state(),
		})
	}
	return infos
}

// Shutdown closes every session. Used by the host on graceful exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for sid := range m.sessions {
		ids = append(ids, sid)
	}
	m.mu.Unlock()

	for _, sid := range ids {
		m.CloseSession(sid)
	}
}

// take removes and returns the session registered under sessionID, or nil.
func (m *Manager) take(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[sessionID]
	if s != nil {
		delete(m.sessions, sessionID)
	}
	return s
}

// terminate releases the PTY handle and stops the shell: SIGTERM to the
// process group first, SIGKILL once the grace period runs out. Signal
// errors are swallowed; a process that is already gone achieves the goal.
func (m *Manager) terminate(s *Session) {
	s.ptmx.Close()

	if p := s.cmd.Process; p != nil {
		// Negative pid targets the whole process group: the shell runs
		// in its own session, so its group id equals its pid.
		syscall.Kill(-p.Pid, syscall.SIGTERM)
	}

	select {
	case <-s.done:
	case <-time.After(m.cfg.GracePeriod):
		if p := s.cmd.Process; p != nil {
			syscall.Kill(-p.Pid, syscall.SIGKILL)
		}
		<-s.done
	}
}

func (m *Manager) recordCommand(status string, d time.Duration) {
	if m.metrics != nil {
		m.metrics.RecordCommand(status, d)
	}
}
