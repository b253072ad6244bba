// Package dirty tracks the content hashes of the source files behind cached
// control flow graphs, so graphs built from a file that has since changed
// can be dropped before they are reused.
package dirty

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// SumsSuffix is appended to a graph cache path to name its hash file.
const SumsSuffix = ".sums"

// fileState is the recorded state of one source file.
type fileState struct {
	Path     string `json:"path"`
	Hash     string `json:"hash"`
	LastSeen int64  `json:"last_seen"` // Unix timestamp
}

// dirtyData is the on-disk JSON structure.
type dirtyData struct {
	Version int         `json:"version"`
	Files   []fileState `json:"files"`
}

// Tracker maps source files, named as the fact store names them, to the
// hash of their content when their graphs were cached. Relative names are
// resolved against root.
type Tracker struct {
	mu    sync.RWMutex
	root  string
	files map[string]fileState
}

// New returns an empty Tracker for files under root.
func New(root string) *Tracker {
	return &Tracker{root: root, files: make(map[string]fileState)}
}

// LoadFile returns the Tracker saved at path. A missing file yields an empty
// Tracker.
func LoadFile(path, root string) (*Tracker, error) {
	t := New(root)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("failed to open hash file: %w", err)
	}
	defer f.Close()

	if err := t.LoadFrom(f); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracker) resolve(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(t.root, file)
}

// computeHash computes SHA256 hash of file contents.
func computeHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Record stores the current hash of file.
func (t *Tracker) Record(file string) error {
	hash, err := computeHash(t.resolve(file))
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[file] = fileState{Path: file, Hash: hash, LastSeen: time.Now().Unix()}
	return nil
}

// Changed reports whether file differs from its recorded hash. Files that
// were never recorded, or can no longer be read, count as changed.
func (t *Tracker) Changed(file string) bool {
	t.mu.RLock()
	state, exists := t.files[file]
	t.mu.RUnlock()
	if !exists {
		return true
	}
	hash, err := computeHash(t.resolve(file))
	return err != nil || hash != state.Hash
}

// ChangedFiles returns the subset of files that Changed, in input order.
// It stops early when ctx is done.
func (t *Tracker) ChangedFiles(ctx context.Context, files []string) ([]string, error) {
	var out []string
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t.Changed(file) {
			out = append(out, file)
		}
	}
	return out, nil
}

// Forget stops tracking file.
func (t *Tracker) Forget(file string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, file)
}

// Len returns the number of tracked files.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.files)
}

// SaveFile writes the recorded hashes to path.
func (t *Tracker) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create hash file: %w", err)
	}
	defer f.Close()

	return t.SaveTo(f)
}

// SaveTo writes the recorded hashes to w, sorted by path.
func (t *Tracker) SaveTo(w io.Writer) error {
	t.mu.RLock()
	files := make([]fileState, 0, len(t.files))
	for _, state := range t.files {
		files = append(files, state)
	}
	t.mu.RUnlock()
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dirtyData{Version: 1, Files: files}); err != nil {
		return fmt.Errorf("failed to encode hashes: %w", err)
	}
	return nil
}

// LoadFrom replaces the recorded hashes with those read from r.
func (t *Tracker) LoadFrom(r io.Reader) error {
	var data dirtyData
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode hashes: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.files = make(map[string]fileState, len(data.Files))
	for _, state := range data.Files {
		t.files[state.Path] = state
	}
	return nil
}
