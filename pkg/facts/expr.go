package facts

import "strings"

// Call is a call expression found in source text. Start and End delimit the
// whole call, callee included; End is exclusive.
type Call struct {
	Callee string
	Start  int
	End    int
}

// Text returns the call's source text inside expr.
func (c Call) Text(expr string) string {
	return expr[c.Start:c.End]
}

// ShortName returns the last segment of a dotted, scoped or arrow-qualified
// name: "app.db.execute" and "Repo::find" yield "execute" and "find".
func ShortName(name string) string {
	name = strings.TrimSpace(name)
	for _, sep := range []string{"::", "->", "."} {
		if i := strings.LastIndex(name, sep); i >= 0 {
			name = name[i+len(sep):]
		}
	}
	return name
}

func isIdent(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// skipString returns the index just past the string literal starting at i.
// Unterminated literals run to the end of s.
func skipString(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case q:
			return j + 1
		}
	}
	return len(s)
}

// opaqueString reports whether the quote at i opens a literal whose content
// is not code. Template literals and Python f-strings interpolate, so their
// content is scanned.
func opaqueString(s string, i int) bool {
	if s[i] == '`' {
		return false
	}
	if i > 0 && (s[i-1] == 'f' || s[i-1] == 'F') {
		prefix := i == 1 || !isIdent(s[i-2]) || s[i-2] == 'r' || s[i-2] == 'R'
		return !prefix
	}
	return true
}

func isQuote(c byte) bool {
	return c == '"' || c == '\'' || c == '`'
}

// References returns the byte offsets at which the identifier v occurs in
// expr. An occurrence must stand alone: it is neither part of a longer
// identifier nor an attribute of something else, and it is not inside an
// opaque string literal.
func References(expr, v string) []int {
	if v == "" {
		return nil
	}
	var out []int
	for i := 0; i < len(expr); {
		c := expr[i]
		if isQuote(c) && opaqueString(expr, i) {
			i = skipString(expr, i)
			continue
		}
		if strings.HasPrefix(expr[i:], v) {
			end := i + len(v)
			before := i == 0 || (!isIdent(expr[i-1]) && expr[i-1] != '.')
			after := end == len(expr) || !isIdent(expr[end])
			if before && after {
				out = append(out, i)
				i = end
				continue
			}
		}
		i++
	}
	return out
}

// Calls returns every call in expr in order of their opening parenthesis,
// nested calls included. A parenthesis not directly preceded by a name is a
// grouping and yields no call.
func Calls(expr string) []Call {
	var out []Call
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if isQuote(c) && opaqueString(expr, i) {
			i = skipString(expr, i) - 1
			continue
		}
		if c != '(' {
			continue
		}
		start := i
		for start > 0 && (isIdent(expr[start-1]) || expr[start-1] == '.') {
			start--
		}
		callee := strings.TrimLeft(expr[start:i], ".")
		if callee == "" {
			continue
		}
		out = append(out, Call{Callee: callee, Start: start, End: closeParen(expr, i)})
	}
	return out
}

// closeParen returns the index just past the parenthesis matching the one
// at open, or len(s) when it is never closed.
func closeParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch c := s[i]; {
		case isQuote(c) && opaqueString(s, i):
			i = skipString(s, i) - 1
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(s)
}

// CallsTo reports whether expr contains a call whose callee's short name is
// name.
func CallsTo(expr, name string) bool {
	for _, c := range Calls(expr) {
		if ShortName(c.Callee) == name {
			return true
		}
	}
	return false
}
