package cfg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scriptSample = `function load(path) {
  if (!path) {
    return false;
  } else {
    log(path);
  }
  const data = read(path);
  return data;
}
const pick = (x) => x.value;
const scan = function (items) {
  for (const i of items) {
    try {
      risky(i);
    } catch (e) {
      handle(e);
    } finally {
      cleanup();
    }
  }
};
function route(kind) {
  switch (kind) {
    case "a":
      first();
    case "b":
      second();
      break;
    default:
      other();
  }
}
`

func parseScriptSample(t *testing.T) map[string]Function {
	t.Helper()
	funcs, err := ParseScript(context.Background(), []byte(scriptSample), scriptGrammar("app.js"))
	require.NoError(t, err)

	names := make([]string, 0, len(funcs))
	byName := make(map[string]Function, len(funcs))
	for _, fn := range funcs {
		names = append(names, fn.Name)
		byName[fn.Name] = fn
	}
	require.Equal(t, []string{"load", "pick", "scan", "route"}, names)
	return byName
}

func TestParseScriptStatements(t *testing.T) {
	funcs := parseScriptSample(t)

	load := funcs["load"]
	assert.Equal(t, 1, load.Line)
	require.Len(t, load.Body, 3)
	guard, ok := load.Body[0].(*If)
	require.True(t, ok)
	assert.Equal(t, "!path", guard.Test)
	assert.Equal(t, []Statement{&Return{Line: 3, Value: "false"}}, guard.Body)
	assert.Equal(t, []Statement{&Simple{Line: 5, Text: "log(path);"}}, guard.Else)
	assert.Equal(t, &Simple{Line: 7, Text: "const data = read(path);"}, load.Body[1])
	assert.Equal(t, &Return{Line: 8, Value: "data"}, load.Body[2])

	assert.Equal(t, []Statement{&Return{Line: 10, Value: "x.value"}}, funcs["pick"].Body)

	scan := funcs["scan"]
	require.Len(t, scan.Body, 1)
	loop, ok := scan.Body[0].(*Loop)
	require.True(t, ok)
	assert.Equal(t, LoopFor, loop.Kind)
	assert.Equal(t, "for (const i of items)", loop.Header)
	require.Len(t, loop.Body, 1)
	try := loop.Body[0].(*Try)
	require.Len(t, try.Handlers, 1)
	assert.Equal(t, "catch (e)", try.Handlers[0].Clause)
	assert.Equal(t, []Statement{&Simple{Line: 16, Text: "handle(e);"}}, try.Handlers[0].Body)
	assert.Equal(t, []Statement{&Simple{Line: 18, Text: "cleanup();"}}, try.Finally)
}

func TestParseScriptSwitchFallthrough(t *testing.T) {
	route := parseScriptSample(t)["route"]
	require.Len(t, route.Body, 1)
	sw, ok := route.Body[0].(*Switch)
	require.True(t, ok)
	assert.Equal(t, "kind", sw.Subject)
	assert.True(t, sw.Fallthrough)
	require.Len(t, sw.Cases, 3)

	assert.Equal(t, `case "a"`, sw.Cases[0].Pattern)
	assert.Equal(t, []Statement{&Simple{Line: 25, Text: "first();"}}, sw.Cases[0].Body)
	assert.Equal(t, []Statement{
		&Simple{Line: 27, Text: "second();"},
		&Break{Line: 28},
	}, sw.Cases[1].Body)
	assert.True(t, sw.Cases[2].Default)

	g := Build("route", route.Body)
	assertWellFormed(t, g)
	assert.Empty(t, g.Unreachable())

	caseA := blockAt(t, g, 24)
	caseB := blockAt(t, g, 26)
	assert.True(t, hasEdge(g, caseA, caseB, EdgeNormal), "case a falls into case b")
	merge := edgeTarget(t, g, caseB, EdgeBreak)
	assert.Equal(t, BlockMerge, g.Blocks[merge].Kind)
	assert.True(t, hasEdge(g, blockAt(t, g, 30), merge, EdgeNormal))
}

func TestParseScriptLabels(t *testing.T) {
	src := `function walk(rows) {
  outer: for (const row of rows) {
    for (const cell of row) {
      if (cell.skip) continue outer;
      if (cell.stop) break outer;
      switch (cell.kind) {
        case "a":
          if (cell.empty) break;
          use(cell);
          break;
        default:
          continue;
      }
      after(cell);
    }
  }
  done();
}
`
	funcs, err := ParseScript(context.Background(), []byte(src), scriptGrammar("walk.js"))
	require.NoError(t, err)
	require.Len(t, funcs, 1)

	body := funcs[0].Body
	require.Len(t, body, 2)
	outer, ok := body[0].(*Loop)
	require.True(t, ok)
	assert.Equal(t, "outer", outer.Label)

	g := Build("walk", body)
	assertWellFormed(t, g)
	assert.Empty(t, g.Unreachable())

	outerHeader := blockAt(t, g, 2)
	innerHeader := blockAt(t, g, 3)
	outerExit := blockAt(t, g, 17)
	skip := edgeTarget(t, g, blockAt(t, g, 4), EdgeTrue)
	stop := edgeTarget(t, g, blockAt(t, g, 5), EdgeTrue)
	assert.True(t, hasEdge(g, skip, outerHeader, EdgeContinue), "continue outer skips the inner loop")
	assert.True(t, hasEdge(g, stop, outerExit, EdgeBreak), "break outer leaves both loops")

	// Both breaks inside the switch land on its merge block, which holds
	// the statement after the switch.
	merge := blockAt(t, g, 14)
	assert.Equal(t, BlockMerge, g.Blocks[merge].Kind)
	empty := edgeTarget(t, g, blockAt(t, g, 8), EdgeTrue)
	assert.True(t, hasEdge(g, empty, merge, EdgeBreak))
	assert.True(t, hasEdge(g, blockAt(t, g, 10), merge, EdgeBreak))
	assert.True(t, hasEdge(g, blockAt(t, g, 12), innerHeader, EdgeContinue), "continue skips the switch")
}

func TestParseScriptFileTypeScript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "api.ts")
	src := `class Api {
  get(req: Request): string {
    const q = req.query.q;
    return q;
  }
}
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	funcs, err := ParseScriptFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, funcs, 1)
	assert.Equal(t, "get", funcs[0].Name)
	assert.Equal(t, 2, funcs[0].Line)
	assert.Equal(t, []Statement{
		&Simple{Line: 3, Text: "const q = req.query.q;"},
		&Return{Line: 4, Value: "q"},
	}, funcs[0].Body)

	_, err = ParseScriptFile(context.Background(), filepath.Join(dir, "app.vue"))
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestScriptGrammar(t *testing.T) {
	assert.NotNil(t, scriptGrammar("a.mjs"))
	assert.NotNil(t, scriptGrammar("a.TSX"))
	assert.Nil(t, scriptGrammar("a.py"))
}
