package cfg

import (
	"context"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Function is a named statement list ready to be built.
type Function struct {
	Name string
	Line int
	Body []Statement
}

// ParsePython parses Python source with tree-sitter and returns every
// function definition (methods and nested functions included) in source order.
func ParsePython(ctx context.Context, content []byte) ([]Function, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing python source: %w", err)
	}
	defer tree.Close()

	c := &pythonConverter{src: content}
	c.collect(tree.RootNode())
	return c.funcs, nil
}

// ParsePythonFile reads and parses a Python file.
func ParsePythonFile(ctx context.Context, path string) ([]Function, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	funcs, err := ParsePython(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return funcs, nil
}

// pythonConverter maps tree-sitter nodes onto the Statement union.
type pythonConverter struct {
	src   []byte
	funcs []Function
}

func (c *pythonConverter) collect(n *sitter.Node) {
	if n == nil {
		return
	}
	if n.Type() == "function_definition" {
		c.funcs = append(c.funcs, Function{
			Name: c.text(n.ChildByFieldName("name")),
			Line: line(n),
			Body: c.block(n.ChildByFieldName("body")),
		})
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c.collect(n.NamedChild(i))
	}
}

func (c *pythonConverter) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(c.src)
}

func line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// clauseHeader returns "except E as e" for "except E as e:\n    ...".
func clauseHeader(s string) string {
	return strings.TrimSuffix(firstLine(s), ":")
}

// bodyOf returns the body field of n, or its first block child.
func bodyOf(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if b := n.ChildByFieldName("body"); b != nil {
		return b
	}
	if b := n.ChildByFieldName("consequence"); b != nil {
		return b
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if ch := n.NamedChild(i); ch.Type() == "block" {
			return ch
		}
	}
	return nil
}

func (c *pythonConverter) block(n *sitter.Node) []Statement {
	if n == nil {
		return nil
	}
	var out []Statement
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if s := c.statement(n.NamedChild(i)); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (c *pythonConverter) statement(n *sitter.Node) Statement {
	ln := line(n)
	switch n.Type() {
	case "comment":
		return nil
	case "expression_statement", "pass_statement", "assert_statement", "delete_statement",
		"import_statement", "import_from_statement", "global_statement", "nonlocal_statement",
		"print_statement", "exec_statement", "type_alias_statement":
		return &Simple{Line: ln, Text: c.text(n)}
	case "return_statement":
		r := &Return{Line: ln}
		if n.NamedChildCount() > 0 {
			r.Value = c.text(n.NamedChild(0))
		}
		return r
	case "break_statement":
		return &Break{Line: ln}
	case "continue_statement":
		return &Continue{Line: ln}
	case "raise_statement":
		return &Raise{Line: ln, Text: c.text(n)}
	case "if_statement":
		return c.ifStatement(n)
	case "for_statement":
		return &Loop{
			Line:   ln,
			Kind:   LoopFor,
			Header: "for " + c.text(n.ChildByFieldName("left")) + " in " + c.text(n.ChildByFieldName("right")),
			Body:   c.block(n.ChildByFieldName("body")),
			Else:   c.block(bodyOf(n.ChildByFieldName("alternative"))),
		}
	case "while_statement":
		return &Loop{
			Line:   ln,
			Kind:   LoopWhile,
			Header: "while " + c.text(n.ChildByFieldName("condition")),
			Body:   c.block(n.ChildByFieldName("body")),
			Else:   c.block(bodyOf(n.ChildByFieldName("alternative"))),
		}
	case "try_statement":
		return c.tryStatement(n)
	case "with_statement":
		return &With{Line: ln, Header: clauseHeader(c.text(n)), Body: c.block(bodyOf(n))}
	case "match_statement":
		return c.matchStatement(n)
	case "function_definition", "class_definition", "decorated_definition":
		return &Generic{Line: ln, Kind: n.Type(), Text: firstLine(c.text(n))}
	default:
		return &Generic{Line: ln, Kind: n.Type(), Text: c.text(n)}
	}
}

func (c *pythonConverter) ifStatement(n *sitter.Node) *If {
	s := &If{
		Line: line(n),
		Test: c.text(n.ChildByFieldName("condition")),
		Body: c.block(n.ChildByFieldName("consequence")),
	}
	var clauses []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		ch := n.NamedChild(i)
		if t := ch.Type(); t == "elif_clause" || t == "else_clause" {
			clauses = append(clauses, ch)
		}
	}
	s.Else = c.elseChain(clauses)
	return s
}

// elseChain folds elif clauses into nested Ifs.
func (c *pythonConverter) elseChain(clauses []*sitter.Node) []Statement {
	if len(clauses) == 0 {
		return nil
	}
	cl := clauses[0]
	if cl.Type() == "else_clause" {
		return c.block(bodyOf(cl))
	}
	return []Statement{&If{
		Line: line(cl),
		Test: c.text(cl.ChildByFieldName("condition")),
		Body: c.block(cl.ChildByFieldName("consequence")),
		Else: c.elseChain(clauses[1:]),
	}}
}

func (c *pythonConverter) tryStatement(n *sitter.Node) *Try {
	s := &Try{Line: line(n), Body: c.block(n.ChildByFieldName("body"))}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		ch := n.NamedChild(i)
		switch ch.Type() {
		case "except_clause", "except_group_clause":
			s.Handlers = append(s.Handlers, Handler{
				Line:   line(ch),
				Clause: clauseHeader(c.text(ch)),
				Body:   c.block(bodyOf(ch)),
			})
		case "else_clause":
			s.Else = c.block(bodyOf(ch))
		case "finally_clause":
			s.Finally = c.block(bodyOf(ch))
		}
	}
	return s
}

func (c *pythonConverter) matchStatement(n *sitter.Node) *Switch {
	s := &Switch{Line: line(n), Subject: c.text(n.ChildByFieldName("subject"))}
	var cases []*sitter.Node
	gather := func(parent *sitter.Node) {
		for i := 0; i < int(parent.NamedChildCount()); i++ {
			if ch := parent.NamedChild(i); ch.Type() == "case_clause" {
				cases = append(cases, ch)
			}
		}
	}
	gather(n)
	if body := n.ChildByFieldName("body"); body != nil {
		gather(body)
	}
	for _, cc := range cases {
		pattern := clauseHeader(c.text(cc))
		s.Cases = append(s.Cases, Case{
			Line:    line(cc),
			Pattern: pattern,
			Body:    c.block(bodyOf(cc)),
			Default: strings.TrimSpace(strings.TrimPrefix(pattern, "case")) == "_",
		})
	}
	return s
}
