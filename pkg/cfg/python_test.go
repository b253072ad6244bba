package cfg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pythonSample = `import os

def load(path):
    if not path:
        return False
    data = read(path)
    return data

def scan(items):
    for i in range(10):
        if i % 4 == 0:
            continue
        elif i > 8:
            break
        else:
            log(i)
    while True:
        pass
    try:
        risky()
    except ValueError as e:
        handle(e)
    else:
        ok()
    finally:
        cleanup()

class Handler:
    def get(self, request):
        q = request.args.get("q")
        with open(q) as f:
            return f.read()
`

func parseSample(t *testing.T) map[string]Function {
	t.Helper()
	funcs, err := ParsePython(context.Background(), []byte(pythonSample))
	require.NoError(t, err)

	names := make([]string, 0, len(funcs))
	byName := make(map[string]Function, len(funcs))
	for _, fn := range funcs {
		names = append(names, fn.Name)
		byName[fn.Name] = fn
	}
	require.Equal(t, []string{"load", "scan", "get"}, names)
	return byName
}

func TestParsePythonStatements(t *testing.T) {
	funcs := parseSample(t)

	load := funcs["load"]
	assert.Equal(t, 3, load.Line)
	require.Len(t, load.Body, 3)
	guard, ok := load.Body[0].(*If)
	require.True(t, ok)
	assert.Equal(t, "not path", guard.Test)
	assert.Equal(t, 4, guard.Line)
	assert.Equal(t, []Statement{&Return{Line: 5, Value: "False"}}, guard.Body)
	assert.Equal(t, &Simple{Line: 6, Text: "data = read(path)"}, load.Body[1])
	assert.Equal(t, &Return{Line: 7, Value: "data"}, load.Body[2])

	scan := funcs["scan"]
	require.Len(t, scan.Body, 3)

	loop, ok := scan.Body[0].(*Loop)
	require.True(t, ok)
	assert.Equal(t, LoopFor, loop.Kind)
	assert.Equal(t, "for i in range(10)", loop.Header)
	require.Len(t, loop.Body, 1)
	branch := loop.Body[0].(*If)
	assert.Equal(t, []Statement{&Continue{Line: 12}}, branch.Body)
	require.Len(t, branch.Else, 1)
	elif := branch.Else[0].(*If)
	assert.Equal(t, "i > 8", elif.Test)
	assert.Equal(t, []Statement{&Break{Line: 14}}, elif.Body)
	assert.Equal(t, []Statement{&Simple{Line: 16, Text: "log(i)"}}, elif.Else)

	while := scan.Body[1].(*Loop)
	assert.Equal(t, LoopWhile, while.Kind)
	assert.Equal(t, "while True", while.Header)

	try := scan.Body[2].(*Try)
	require.Len(t, try.Handlers, 1)
	assert.Equal(t, "except ValueError as e", try.Handlers[0].Clause)
	assert.Equal(t, []Statement{&Simple{Line: 22, Text: "handle(e)"}}, try.Handlers[0].Body)
	assert.Equal(t, []Statement{&Simple{Line: 24, Text: "ok()"}}, try.Else)
	assert.Equal(t, []Statement{&Simple{Line: 26, Text: "cleanup()"}}, try.Finally)

	get := funcs["get"]
	require.Len(t, get.Body, 2)
	with := get.Body[1].(*With)
	assert.Equal(t, "with open(q) as f", with.Header)
	assert.Equal(t, []Statement{&Return{Line: 32, Value: "f.read()"}}, with.Body)
}

func TestParsedPythonBuildsGraph(t *testing.T) {
	funcs := parseSample(t)

	g := Build("scan", funcs["scan"].Body)
	assertWellFormed(t, g)

	header := blockAt(t, g, 10)
	assert.True(t, hasEdge(g, blockAt(t, g, 12), header, EdgeContinue))
	assert.True(t, hasEdge(g, blockAt(t, g, 14), edgeTarget(t, g, header, EdgeExitLoop), EdgeBreak))

	fin := blockAt(t, g, 26)
	assert.Equal(t, BlockFinally, g.Blocks[fin].Kind)
	assert.True(t, g.PostDominates(fin, blockAt(t, g, 20)))
	assert.True(t, g.PostDominates(fin, blockAt(t, g, 22)))
}

func TestSourceFilesBody(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte(pythonSample), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("function load(p) {\n  return read(p);\n}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0644))

	src := NewSourceFiles(dir, nil)

	body, ok := src.Body("app.py", "load")
	require.True(t, ok)
	assert.Len(t, body, 3)

	body, ok = src.Body("app.py", "Handler.get")
	require.True(t, ok, "qualified names fall back to the method name")
	assert.Len(t, body, 2)

	body, ok = src.Body("app.js", "load")
	require.True(t, ok)
	assert.Equal(t, []Statement{&Return{Line: 2, Value: "read(p)"}}, body)

	_, ok = src.Body("app.py", "missing")
	assert.False(t, ok)
	_, ok = src.Body("nope.py", "load")
	assert.False(t, ok)
	_, ok = src.Body("main.go", "main")
	assert.False(t, ok)
}

func TestParseFileUnsupported(t *testing.T) {
	_, err := ParseFile(context.Background(), "main.go")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}
