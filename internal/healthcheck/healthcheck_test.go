package healthcheck

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/l3aro/go-taint-query/internal/config"
	"github.com/l3aro/go-taint-query/pkg/facts"
	"github.com/l3aro/go-taint-query/pkg/registry"
	"github.com/l3aro/go-taint-query/pkg/taint"
)

func byName(r *HealthCheckResult) map[string]CheckResult {
	out := make(map[string]CheckResult, len(r.Checks))
	for _, c := range r.Checks {
		out[c.Name] = c
	}
	return out
}

func project(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	c := config.DefaultConfig()
	c.SourceRoot = dir
	c.FactStore = filepath.Join(dir, "facts.db")
	c.FactSetPath = filepath.Join(dir, ".gtq", "factset.msgpack")

	tables := facts.Tables{
		Assignments: []facts.Assignment{
			{File: "app.py", Line: 2, Target: "q", Expr: "request.args.get('q')", Function: "view"},
			{File: "gone.py", Line: 2, Target: "x", Expr: "1", Function: "f"},
			{File: "Main.java", Line: 3, Target: "y", Expr: "2", Function: "main"},
		},
		Symbols: []facts.Symbol{{Path: "app.py", Name: "view", Type: "function", Line: 1}},
	}
	if err := facts.WriteSQLite(c.FactStore, tables); err != nil {
		t.Fatalf("WriteSQLite() failed: %v", err)
	}
	files := map[string]string{
		"app.py":   "def view():\n    q = request.args.get('q')\n",
		"extra.js": "function f() {}\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile() failed: %v", err)
		}
	}
	return c
}

func TestCheckWithNilConfig(t *testing.T) {
	_, err := Check(context.Background(), nil, "")
	if err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func TestCheck(t *testing.T) {
	c := project(t)

	result, err := Check(context.Background(), c, "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.Failed() {
		t.Errorf("Failed() = true, checks: %+v", result.Checks)
	}
	if result.ConfigScope != "" {
		t.Errorf("ConfigScope = %q, want empty", result.ConfigScope)
	}

	checks := byName(result)
	if got := checks["fact store"].Status; got != StatusOK {
		t.Errorf("fact store status = %q, want ok", got)
	}
	if got := checks["patterns"].Detail; got != "plugins flask, core" {
		t.Errorf("patterns detail = %q", got)
	}

	src := checks["source root"]
	if src.Status != StatusWarn {
		t.Errorf("source root status = %q, want warn", src.Status)
	}
	want := "1 of 2 fact-store files parsed, 1 use line order, 1 unreadable; 1 source files have no facts"
	if src.Detail != want {
		t.Errorf("source root detail = %q, want %q", src.Detail, want)
	}

	if got := checks["fact set"].Status; got != StatusWarn {
		t.Errorf("fact set status = %q, want warn before analyze", got)
	}
}

func TestCheckFactSet(t *testing.T) {
	c := project(t)
	store, err := facts.OpenSQLite(context.Background(), c.FactStore)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	reg := registry.New().RegisterSource("request.args", registry.CategoryUserInput, "")
	fs, err := taint.NewEngine(taint.Options{}).Compute(context.Background(), store, reg)
	if err != nil {
		t.Fatalf("Compute() failed: %v", err)
	}
	if err := fs.SaveFile(c.FactSetPath); err != nil {
		t.Fatalf("SaveFile() failed: %v", err)
	}

	got := checkFactSet(c.FactSetPath)
	if got.Status != StatusOK {
		t.Errorf("fact set status = %q (%s), want ok", got.Status, got.Detail)
	}

	if err := os.WriteFile(c.FactSetPath, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := checkFactSet(c.FactSetPath); got.Status != StatusError {
		t.Errorf("fact set status = %q, want error for a corrupt file", got.Status)
	}
}

func TestCheckFailures(t *testing.T) {
	c := project(t)
	c.FactStore = filepath.Join(c.SourceRoot, "missing.db")
	c.Frameworks = []string{"rails"}

	result, err := Check(context.Background(), c, "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if !result.Failed() {
		t.Error("Failed() = false, want true")
	}
	checks := byName(result)
	if got := checks["fact store"].Status; got != StatusError {
		t.Errorf("fact store status = %q, want error", got)
	}
	if got := checks["patterns"].Status; got != StatusError {
		t.Errorf("patterns status = %q, want error for an unknown framework", got)
	}
	if got := checks["source root"].Status; got != StatusWarn {
		t.Errorf("source root status = %q, want warn without a store", got)
	}
}

func TestCheckWithoutCFG(t *testing.T) {
	c := project(t)
	c.UseCFG = false

	result, err := Check(context.Background(), c, "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if got := byName(result)["source root"].Status; got != StatusSkipped {
		t.Errorf("source root status = %q, want skipped", got)
	}
}

func TestScopeFromPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		path string
		want string
	}{
		{"", ""},
		{filepath.Join(home, ".gtq", "config.yaml"), "global"},
		{filepath.Join(".gtq", "config.yaml"), "project"},
	}
	for _, tt := range tests {
		if got := scopeFromPath(tt.path); got != tt.want {
			t.Errorf("scopeFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
