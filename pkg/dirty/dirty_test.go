package dirty

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestTracker_Changed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app/views.py", "def search():\n    pass\n")

	tracker := New(root)
	assert.True(t, tracker.Changed("app/views.py"), "unrecorded files count as changed")

	require.NoError(t, tracker.Record("app/views.py"))
	assert.Equal(t, 1, tracker.Len())
	assert.False(t, tracker.Changed("app/views.py"))

	writeFile(t, root, "app/views.py", "def search():\n    return 1\n")
	assert.True(t, tracker.Changed("app/views.py"))

	require.NoError(t, os.Remove(filepath.Join(root, "app/views.py")))
	assert.True(t, tracker.Changed("app/views.py"), "unreadable files count as changed")
}

func TestTracker_RecordMissing(t *testing.T) {
	tracker := New(t.TempDir())
	assert.Error(t, tracker.Record("missing.py"))
	assert.Equal(t, 0, tracker.Len())
}

func TestTracker_ChangedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "a = 1\n")
	writeFile(t, root, "b.py", "b = 1\n")
	writeFile(t, root, "c.py", "c = 1\n")

	tracker := New(root)
	for _, f := range []string{"a.py", "b.py", "c.py"} {
		require.NoError(t, tracker.Record(f))
	}
	writeFile(t, root, "c.py", "c = 2\n")
	writeFile(t, root, "a.py", "a = 2\n")

	changed, err := tracker.ChangedFiles(context.Background(), []string{"a.py", "b.py", "c.py"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "c.py"}, changed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tracker.ChangedFiles(ctx, []string{"a.py"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTracker_Forget(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "a = 1\n")

	tracker := New(root)
	require.NoError(t, tracker.Record("a.py"))
	tracker.Forget("a.py")
	assert.Equal(t, 0, tracker.Len())
	assert.True(t, tracker.Changed("a.py"))
}

func TestTracker_SaveLoad(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "a = 1\n")
	writeFile(t, root, "b.js", "const b = 1;\n")

	tracker := New(root)
	require.NoError(t, tracker.Record("a.py"))
	require.NoError(t, tracker.Record("b.js"))

	var buf bytes.Buffer
	require.NoError(t, tracker.SaveTo(&buf))

	loaded := New(root)
	require.NoError(t, loaded.LoadFrom(&buf))
	assert.Equal(t, 2, loaded.Len())
	assert.False(t, loaded.Changed("a.py"))
	assert.False(t, loaded.Changed("b.js"))
}

func TestTracker_SaveFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "a = 1\n")
	path := filepath.Join(root, ".gtq", "cfg.cache"+SumsSuffix)

	tracker := New(root)
	require.NoError(t, tracker.Record("a.py"))
	require.NoError(t, tracker.SaveFile(path))

	loaded, err := LoadFile(path, root)
	require.NoError(t, err)
	assert.False(t, loaded.Changed("a.py"))

	empty, err := LoadFile(filepath.Join(root, "none.sums"), root)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestTracker_LoadInvalid(t *testing.T) {
	tracker := New(t.TempDir())
	assert.Error(t, tracker.LoadFrom(bytes.NewBufferString("not json")))
}
