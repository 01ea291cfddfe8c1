package terminal

import (
	"os/exec"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeterm/edgeterm/internal/infrastructure/monitoring"
)

func requireBash(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	return path
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	shell := requireBash(t)
	m := NewManager(Config{
		Shell:          shell,
		SettleDelay:    200 * time.Millisecond,
		PollInterval:   50 * time.Millisecond,
		CommandTimeout: 2 * time.Second,
		GracePeriod:    time.Second,
	}, nil)
	t.Cleanup(m.Shutdown)
	return m
}

func TestCreateSessionGeneratesID(t *testing.T) {
	m := newTestManager(t)

	sid, err := m.CreateSession("")
	require.NoError(t, err)
	assert.NotEmpty(t, sid)

	info, err := m.GetSession(sid)
	require.NoError(t, err)
	assert.Equal(t, StateActive, info.State)
}

func TestCreateSessionSpawnFailure(t *testing.T) {
	m := NewManager(Config{Shell: "/nonexistent/shell"}, nil)

	_, err := m.CreateSession("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawn)
	assert.Empty(t, m.ListSessions())
}

func TestExecuteCommand(t *testing.T) {
	m := newTestManager(t)

	sid, err := m.CreateSession("")
	require.NoError(t, err)

	result, err := m.ExecuteCommand(sid, "echo HELLO_MARKER", time.Second)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Stdout, "HELLO_MARKER")
	assert.Empty(t, result.Stderr)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, sid, result.SessionID)
}

func TestExecuteCommandStatePersists(t *testing.T) {
	m := newTestManager(t)

	sid, err := m.CreateSession("")
	require.NoError(t, err)

	_, err = m.ExecuteCommand(sid, "export EDGETERM_TEST_VAR=42", time.Second)
	require.NoError(t, err)

	result, err := m.ExecuteCommand(sid, "echo value=$EDGETERM_TEST_VAR", time.Second)
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "value=42")
}

func TestExecuteCommandStderrCaptured(t *testing.T) {
	m := newTestManager(t)

	sid, err := m.CreateSession("")
	require.NoError(t, err)

	// The PTY fuses the streams, so stderr output lands in Stdout.
	result, err := m.ExecuteCommand(sid, "echo ERR_MARKER 1>&2", time.Second)
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "ERR_MARKER")
	assert.Empty(t, result.Stderr)
}

func TestExecuteCommandUnknownSession(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ExecuteCommand("no-such-session", "echo hi", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecuteCommandTimeoutBounds(t *testing.T) {
	m := newTestManager(t)

	sid, err := m.CreateSession("")
	require.NoError(t, err)

	start := time.Now()
	result, err := m.ExecuteCommand(sid, "sleep 5", 500*time.Millisecond)
	elapsed := time.Since(start)

	// Timeout expiry is success with whatever was captured, not an error.
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestExecuteCommandAfterShellExit(t *testing.T) {
	m := newTestManager(t)

	sid, err := m.CreateSession("")
	require.NoError(t, err)

	_, err = m.ExecuteCommand(sid, "exit", 500*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		info, err := m.GetSession(sid)
		return err == nil && info.State == StateEnded
	}, 3*time.Second, 50*time.Millisecond)

	_, err = m.ExecuteCommand(sid, "echo hi", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionEnded)

	// The entry stays registered until explicitly closed.
	assert.Len(t, m.ListSessions(), 1)
	assert.True(t, m.CloseSession(sid))
}

func TestCloseSession(t *testing.T) {
	m := newTestManager(t)

	sid, err := m.CreateSession("")
	require.NoError(t, err)

	assert.True(t, m.CloseSession(sid))
	assert.False(t, m.CloseSession(sid))

	_, err = m.GetSession(sid)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateSessionReplacesExisting(t *testing.T) {
	m := newTestManager(t)

	_, err := m.CreateSession("fixed")
	require.NoError(t, err)

	m.mu.Lock()
	oldPid := m.sessions["fixed"].cmd.Process.Pid
	m.mu.Unlock()

	sid, err := m.CreateSession("fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", sid)

	infos := m.ListSessions()
	require.Len(t, infos, 1)
	assert.Equal(t, StateActive, infos[0].State)

	// The displaced shell is gone by the time the replacement returns.
	assert.ErrorIs(t, syscall.Kill(oldPid, 0), syscall.ESRCH)
}

func TestCreateSessionConcurrentSameID(t *testing.T) {
	m := newTestManager(t).WithMetrics(monitoring.NewMetrics())

	const n = 4
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CreateSession("dup")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Exactly one session survives the race; every loser was displaced
	// and terminated rather than left unreachable.
	require.Len(t, m.ListSessions(), 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.metrics.SessionsActive))

	assert.True(t, m.CloseSession("dup"))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.metrics.SessionsActive))
}

func TestReplaceKeepsSessionGaugeBalanced(t *testing.T) {
	m := newTestManager(t).WithMetrics(monitoring.NewMetrics())

	_, err := m.CreateSession("dup")
	require.NoError(t, err)
	_, err = m.CreateSession("dup")
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.metrics.SessionsActive))

	m.CloseSession("dup")
	assert.Equal(t, float64(0), testutil.ToFloat64(m.metrics.SessionsActive))
}

func TestCloseSessionKillsUnresponsiveProcess(t *testing.T) {
	m := newTestManager(t)

	sid, err := m.CreateSession("")
	require.NoError(t, err)

	m.mu.Lock()
	pid := m.sessions[sid].cmd.Process.Pid
	m.mu.Unlock()

	// Swap the shell for a process that ignores graceful termination;
	// ignored dispositions survive exec.
	_, err = m.ExecuteCommand(sid, "trap '' TERM HUP; exec sleep 100", 500*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	require.True(t, m.CloseSession(sid))
	elapsed := time.Since(start)

	// SIGTERM was ignored, so teardown had to sit out the grace period
	// and escalate to SIGKILL; the process is gone when CloseSession
	// returns.
	assert.GreaterOrEqual(t, elapsed, m.cfg.GracePeriod)
	assert.ErrorIs(t, syscall.Kill(pid, 0), syscall.ESRCH)
}

func TestListSessions(t *testing.T) {
	m := newTestManager(t)

	assert.Empty(t, m.ListSessions())

	a, err := m.CreateSession("")
	require.NoError(t, err)
	b, err := m.CreateSession("")
	require.NoError(t, err)

	infos := m.ListSessions()
	assert.Len(t, infos, 2)

	seen := map[string]bool{}
	for _, info := range infos {
		seen[info.ID] = true
	}
	assert.True(t, seen[a])
	assert.True(t, seen[b])
}

func TestShutdownClosesAll(t *testing.T) {
	m := newTestManager(t)

	_, err := m.CreateSession("")
	require.NoError(t, err)
	_, err = m.CreateSession("")
	require.NoError(t, err)

	m.Shutdown()
	assert.Empty(t, m.ListSessions())
}

func TestDefaultTimeoutApplied(t *testing.T) {
	m := newTestManager(t)

	sid, err := m.CreateSession("")
	require.NoError(t, err)

	// Non-positive timeout selects the configured default (2s here).
	start := time.Now()
	result, err := m.ExecuteCommand(sid, "echo DEFAULT_MARKER", 0)
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "DEFAULT_MARKER")
	assert.Less(t, time.Since(start), 4*time.Second)
}
