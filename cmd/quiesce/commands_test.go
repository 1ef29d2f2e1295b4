package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/quiesce/pkg/activity"
	"github.com/Veraticus/quiesce/pkg/control"
	"github.com/Veraticus/quiesce/pkg/process"
)

// isolate keeps the user's config and environment out of a command run.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("QUIESCE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("QUIESCE_SOCKET", "")
	t.Setenv("QUIESCE_INACTIVITY_TIMEOUT", "")
	t.Setenv("QUIESCE_DEBUG", "")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func startDaemon(t *testing.T, timeout time.Duration) (*activity.Monitor, string) {
	t.Helper()
	m := activity.New(
		activity.WithInactivityTimeout(timeout),
		activity.WithPollInterval(10*time.Millisecond),
	)
	sock := testSockPath(t)
	srv := control.NewServer(sock, m)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		m.Teardown()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return m, sock
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exitErr *exitCodeError
	require.True(t, errors.As(err, &exitErr), "expected an exit code error, got %v", err)
	return exitErr.code
}

func TestWaitSelfTest(t *testing.T) {
	isolate(t)
	t.Setenv("QUIESCE_INACTIVITY_TIMEOUT", "50ms")

	out, err := execute(t, "wait", "--self-test", "--timeout", "5s")
	require.NoError(t, err)
	assert.Equal(t, "idle\n", out)
}

func TestWaitSelfTestTimesOut(t *testing.T) {
	isolate(t)
	t.Setenv("QUIESCE_INACTIVITY_TIMEOUT", "5s")

	out, err := execute(t, "wait", "--self-test", "--timeout", "50")
	assert.Equal(t, exitTimedOut, exitCode(t, err))
	assert.Equal(t, "timed_out\n", out)
}

func TestClientCommandsWithoutDaemon(t *testing.T) {
	isolate(t)
	sock := filepath.Join(testSockPath(t) + ".missing")

	for _, args := range [][]string{
		{"status"},
		{"pulse"},
		{"set-timeout", "1s"},
		{"wait", "--timeout", "1s"},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, err := execute(t, append(args, "--socket", sock)...)
			require.Error(t, err)
			assert.ErrorIs(t, err, control.ErrNotRunning)
			assert.Contains(t, err.Error(), "quiesce watch")
		})
	}
}

func TestPulseAndStatus(t *testing.T) {
	isolate(t)
	m, sock := startDaemon(t, time.Minute)

	out, err := execute(t, "status", "--socket", sock)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "idle"), out)

	_, err = execute(t, "pulse", "--socket", sock)
	require.NoError(t, err)
	assert.True(t, m.CurrentState().Active)

	out, err = execute(t, "status", "--json", "--socket", sock)
	require.NoError(t, err)
	var resp control.StateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Active)
	require.NotNil(t, resp.RemainingMs)
	assert.Positive(t, *resp.RemainingMs)
	assert.Equal(t, int64(60000), resp.InactivityTimeoutMs)
}

func TestSetTimeout(t *testing.T) {
	isolate(t)
	m, sock := startDaemon(t, time.Minute)

	out, err := execute(t, "set-timeout", "1500", "--socket", sock)
	require.NoError(t, err)
	assert.Equal(t, "inactivity timeout set to 1.5s\n", out)
	assert.Equal(t, 1500*time.Millisecond, m.InactivityTimeout())

	_, err = execute(t, "set-timeout", "3s", "--socket", sock)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, m.InactivityTimeout())

	_, err = execute(t, "set-timeout", "-5", "--socket", sock)
	assert.Error(t, err)
	assert.Equal(t, 3*time.Second, m.InactivityTimeout())

	_, err = execute(t, "set-timeout", "soon", "--socket", sock)
	assert.Error(t, err)
}

func TestWaitAgainstDaemon(t *testing.T) {
	isolate(t)
	m, sock := startDaemon(t, 100*time.Millisecond)
	m.NotifyActivity()

	out, err := execute(t, "wait", "--timeout", "5s", "--socket", sock)
	require.NoError(t, err)
	assert.Equal(t, "idle\n", out)

	m.SetInactivityTimeout(time.Minute)
	m.NotifyActivity()
	out, err = execute(t, "wait", "--timeout", "50ms", "--socket", sock)
	assert.Equal(t, exitTimedOut, exitCode(t, err))
	assert.Equal(t, "timed_out\n", out)
}

func TestExec(t *testing.T) {
	isolate(t)
	m, sock := startDaemon(t, time.Minute)

	t.Run("idle runs the command", func(t *testing.T) {
		out, err := execute(t, "exec", "--socket", sock, "--", "sh", "-c", "echo gated=$QUIESCE_GATED")
		require.NoError(t, err)
		assert.Equal(t, "gated=1\n", out)
	})

	t.Run("child exit code is kept", func(t *testing.T) {
		_, err := execute(t, "exec", "--socket", sock, "--", "sh", "-c", "exit 7")
		assert.Equal(t, 7, exitCode(t, err))
	})

	m.NotifyActivity()

	t.Run("still active skips the command", func(t *testing.T) {
		out, err := execute(t, "exec", "--timeout", "50ms", "--socket", sock, "--", "echo", "ran")
		assert.Equal(t, exitTimedOut, exitCode(t, err))
		assert.ErrorIs(t, err, process.ErrStillActive)
		assert.Empty(t, out)
	})

	t.Run("force runs anyway", func(t *testing.T) {
		out, err := execute(t, "exec", "--timeout", "50ms", "--force", "--socket", sock, "--", "echo", "ran")
		require.NoError(t, err)
		assert.Equal(t, "ran\n", out)
	})
}

func TestDurationValue(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "2s", want: 2 * time.Second},
		{in: "1500", want: 1500 * time.Millisecond},
		{in: " 250ms ", want: 250 * time.Millisecond},
		{in: "0", want: 0},
		{in: "-1s", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "later", wantErr: true},
		{in: "18446744073710", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d durationValue
			err := d.Set(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, time.Duration(d))
			assert.Equal(t, "duration", d.Type())
		})
	}
}

func TestExitMapping(t *testing.T) {
	assert.NoError(t, outcomeError(activity.OutcomeIdle))
	assert.Equal(t, exitTimedOut, exitCode(t, outcomeError(activity.OutcomeTimedOut)))
	assert.Equal(t, exitCancelled, exitCode(t, outcomeError(activity.OutcomeCancelled)))

	assert.NoError(t, execError(0, nil))
	assert.Equal(t, 2, exitCode(t, execError(2, nil)))
	assert.Equal(t, exitCancelled, exitCode(t, execError(-1, process.ErrWaitCancelled)))

	plain := errors.New("boom")
	assert.Same(t, plain, execError(-1, plain))
}

func TestRunExitCodes(t *testing.T) {
	isolate(t)
	assert.Equal(t, 1, run([]string{"no-such-command"}))
	assert.Equal(t, 1, run([]string{"status", "--socket", filepath.Join(t.TempDir(), "none.sock")}))
}
