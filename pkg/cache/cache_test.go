package cache

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-taint-query/pkg/cfg"
)

func graph(name string) *cfg.Graph {
	return cfg.Build(name, []cfg.Statement{
		&cfg.If{Line: 1, Test: "x", Body: []cfg.Statement{&cfg.Return{Line: 2, Value: "1"}}},
		&cfg.Simple{Line: 3, Text: "y = x"},
	})
}

func TestGraphCache_Basic(t *testing.T) {
	c := New(Options{MaxSize: 3})

	c.Set("a", graph("a"))
	c.Set("b", graph("b"))

	assert.Equal(t, 2, c.Len())

	g, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "a", g.Name)

	_, found = c.Get("missing")
	assert.False(t, found)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.HitCount)
	assert.Equal(t, int64(1), stats.MissCount)
}

func TestGraphCache_LRU_Eviction(t *testing.T) {
	var evicted []string
	c := New(Options{MaxSize: 3, OnEvict: func(key string, _ *cfg.Graph) {
		evicted = append(evicted, key)
	}})

	c.Set("a", graph("a"))
	c.Set("b", graph("b"))
	c.Set("c", graph("c"))

	// Access 'a' to make it most recently used
	c.Get("a")

	// Add new item - should evict 'b' (least recently used)
	c.Set("d", graph("d"))

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, found = c.Get(key)
		assert.True(t, found, "%s should still be present", key)
	}
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestGraphCache_DeleteAndClear(t *testing.T) {
	c := New(Options{})
	c.Set("a", graph("a"))
	c.Set("b", graph("b"))

	c.Delete("a")
	c.Delete("never")
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestGraphCache_GetOrBuildBuildsOnce(t *testing.T) {
	c := New(Options{MaxSize: 10})
	key := Key("app.py", "handler")

	var mu sync.Mutex
	builds := 0
	build := func() *cfg.Graph {
		mu.Lock()
		builds++
		mu.Unlock()
		return graph("handler")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := c.GetOrBuild(key, build)
			assert.Equal(t, "handler", g.Name)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, builds)
	assert.Equal(t, "app.py::handler", key)
}

func TestGraphCache_SaveLoad(t *testing.T) {
	c := New(Options{MaxSize: 10})
	c.Set(Key("a.py", "f"), graph("f"))
	c.Set(Key("b.py", "g"), graph("g"))

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	restored := New(Options{MaxSize: 10})
	require.NoError(t, restored.Load(&buf))
	assert.Equal(t, 2, restored.Len())

	orig, _ := c.Get(Key("a.py", "f"))
	back, found := restored.Get(Key("a.py", "f"))
	require.True(t, found)
	assert.Equal(t, orig.NumBlocks(), back.NumBlocks())
	assert.Equal(t, orig.Edges, back.Edges)
}

func TestGraphCache_PersistToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.msgpack")

	// a missing file is not an error
	empty := New(Options{})
	require.NoError(t, LoadFromFile(empty, path))
	assert.Equal(t, 0, empty.Len())

	c := New(Options{})
	c.Set("k", graph("k"))
	require.NoError(t, PersistToFile(c, path))

	loaded := New(Options{})
	require.NoError(t, LoadFromFile(loaded, path))
	assert.Equal(t, 1, loaded.Len())
}

func TestGraphCache_LoadRejectsGarbage(t *testing.T) {
	c := New(Options{})
	err := c.Load(bytes.NewReader([]byte{0xc1, 0x00}))
	assert.Error(t, err)
}

func TestGraphCache_Files(t *testing.T) {
	c := New(Options{})
	c.Set(Key("b.py", "f"), graph("f"))
	c.Set(Key("a.py", "g"), graph("g"))
	c.Set(Key("a.py", "Handler.get"), graph("get"))
	c.Set(Key("a.pyx", "h"), graph("h"))

	assert.Equal(t, []string{"a.py", "a.pyx", "b.py"}, c.Files())

	assert.Equal(t, 2, c.DeleteFile("a.py"))
	assert.Equal(t, []string{"a.pyx", "b.py"}, c.Files())
	assert.Equal(t, 0, c.DeleteFile("missing.py"))
}
