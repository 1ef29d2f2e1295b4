package source

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/quiesce/pkg/testutil"
)

const pulseWait = 2 * time.Second

func startWatcher(t *testing.T, root string, ignore []string, filter EventFilter) (*FSWatcher, *testutil.MockActivityNotifier) {
	t.Helper()
	notifier := testutil.NewMockActivityNotifier()
	w, err := NewFSWatcher([]string{root}, ignore, filter, notifier)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, notifier
}

func TestParseOps(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    fsnotify.Op
		wantErr bool
	}{
		{name: "empty", in: nil, want: 0},
		{name: "single", in: []string{"write"}, want: fsnotify.Write},
		{name: "mixed case", in: []string{"Create", "REMOVE"}, want: fsnotify.Create | fsnotify.Remove},
		{name: "all", in: []string{"create", "write", "remove", "rename", "chmod"},
			want: fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename | fsnotify.Chmod},
		{name: "unknown", in: []string{"truncate"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOps(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventFilters(t *testing.T) {
	write := fsnotify.Event{Name: "a", Op: fsnotify.Write}
	chmod := fsnotify.Event{Name: "a", Op: fsnotify.Chmod}

	assert.True(t, OpFilter(fsnotify.Write)(write))
	assert.False(t, OpFilter(fsnotify.Write)(chmod))
	assert.True(t, Not(OpFilter(fsnotify.Chmod))(write))

	both := AllOf(OpFilter(fsnotify.Write|fsnotify.Chmod), Not(OpFilter(fsnotify.Chmod)))
	assert.True(t, both(write))
	assert.False(t, both(chmod))
}

func TestFSWatcher_Ignored(t *testing.T) {
	w := &FSWatcher{ignore: []string{".git", "*.swp"}}

	assert.True(t, w.ignored("/vault/.git/index"))
	assert.True(t, w.ignored("/vault/notes/.today.md.swp"))
	assert.False(t, w.ignored("/vault/notes/today.md"))
	assert.False(t, w.ignored("/vault/.github/workflow.yml"))
}

func TestFSWatcher_WriteIsActivity(t *testing.T) {
	root := t.TempDir()
	_, notifier := startWatcher(t, root, nil, nil)

	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("hello"), 0o600))
	assert.True(t, notifier.WaitForPulse(pulseWait), "expected a pulse for a new file")
}

func TestFSWatcher_IgnoredPathIsSilent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	_, notifier := startWatcher(t, root, []string{".git", "*.swp"}, nil)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "index"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md.swp"), []byte("x"), 0o600))
	assert.False(t, notifier.WaitForPulse(300*time.Millisecond))
	assert.Equal(t, 0, notifier.Count())
}

func TestFSWatcher_NewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	w, notifier := startWatcher(t, root, nil, nil)

	sub := filepath.Join(root, "attachments")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.True(t, notifier.WaitForPulse(pulseWait), "mkdir should count as activity")

	require.Eventually(t, func() bool {
		return slices.Contains(w.WatchList(), sub)
	}, pulseWait, 10*time.Millisecond)
	notifier.Drain()

	require.NoError(t, os.WriteFile(filepath.Join(sub, "pic.png"), []byte("x"), 0o600))
	assert.True(t, notifier.WaitForPulse(pulseWait), "writes inside a new directory should pulse")
}

func TestFSWatcher_FilterRejectsOps(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, notifier := startWatcher(t, root, nil, OpFilter(fsnotify.Remove))

	require.NoError(t, os.Chmod(path, 0o644))
	assert.False(t, notifier.WaitForPulse(300*time.Millisecond), "chmod is not in the filter")

	require.NoError(t, os.Remove(path))
	assert.True(t, notifier.WaitForPulse(pulseWait), "remove is in the filter")
}

func TestNewFSWatcher_MissingRoot(t *testing.T) {
	_, err := NewFSWatcher([]string{filepath.Join(t.TempDir(), "missing")}, nil, nil, testutil.NewMockActivityNotifier())
	assert.Error(t, err)
}
