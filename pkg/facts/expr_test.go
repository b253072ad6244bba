package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalls(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []Call
	}{
		{"single", "sanitize(a)", []Call{{Callee: "sanitize", Start: 0, End: 11}}},
		{"nested", "db.execute(q, escape(x))", []Call{
			{Callee: "db.execute", Start: 0, End: 24},
			{Callee: "escape", Start: 14, End: 23},
		}},
		{"grouping", "(a + b) * 2", nil},
		{"paren inside string", `log("f(x)")`, []Call{{Callee: "log", Start: 0, End: 11}}},
		{"unclosed", "run(a, b", []Call{{Callee: "run", Start: 0, End: 8}}},
		{"chained", "get().strip()", []Call{
			{Callee: "get", Start: 0, End: 5},
			{Callee: "strip", Start: 5, End: 13},
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Calls(tc.expr))
		})
	}
}

func TestCallText(t *testing.T) {
	expr := "x = html.escape(name) + y"
	calls := Calls(expr)
	if assert.Len(t, calls, 1) {
		assert.Equal(t, "html.escape(name)", calls[0].Text(expr))
	}
}

func TestReferences(t *testing.T) {
	tests := []struct {
		name string
		expr string
		v    string
		want []int
	}{
		{"attribute and longer name ignored", "a.b + b + ab", "b", []int{6}},
		{"string literal ignored", "'a' + a", "a", []int{6}},
		{"f-string interpolates", `f"select {a}"`, "a", []int{10}},
		{"template literal interpolates", "`id=${a}`", "a", []int{6}},
		{"dotted variable", "self.x + x", "self.x", []int{0}},
		{"inside call", "sanitize(a)", "a", []int{9}},
		{"absent", "foo(bar)", "a", nil},
		{"empty name", "a", "", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, References(tc.expr, tc.v))
		})
	}
}

func TestShortName(t *testing.T) {
	tests := map[string]string{
		"app.db.execute": "execute",
		"Repo::find":     "find",
		"$this->query":   "query",
		"plain":          "plain",
		" spaced ":       "spaced",
	}
	for in, want := range tests {
		assert.Equal(t, want, ShortName(in), in)
	}
}

func TestCallsTo(t *testing.T) {
	assert.True(t, CallsTo("x = helpers.get_input()", "get_input"))
	assert.False(t, CallsTo("x = get_input_raw()", "get_input"))
	assert.False(t, CallsTo("x = 'get_input()'", "get_input"))
}
