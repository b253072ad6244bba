package cfg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// scriptGrammar returns the tree-sitter grammar for a JavaScript or
// TypeScript path, or nil.
func scriptGrammar(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	case ".js", ".jsx", ".mjs", ".cjs":
		return javascript.GetLanguage()
	}
	return nil
}

// ParseScript parses JavaScript or TypeScript source with grammar and returns
// every function with a name in source order. Anonymous functions are named
// after the variable, field, property or assignment target they are bound to;
// the rest are skipped.
func ParseScript(ctx context.Context, content []byte, grammar *sitter.Language) ([]Function, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing script source: %w", err)
	}
	defer tree.Close()

	c := &scriptConverter{src: content}
	c.collect(tree.RootNode())
	return c.funcs, nil
}

// ParseScriptFile reads and parses a JavaScript or TypeScript file, picking
// the grammar from its extension.
func ParseScriptFile(ctx context.Context, path string) ([]Function, error) {
	grammar := scriptGrammar(path)
	if grammar == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedLanguage)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	funcs, err := ParseScript(ctx, content, grammar)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return funcs, nil
}

type scriptConverter struct {
	src   []byte
	funcs []Function
}

func (c *scriptConverter) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(c.src)
}

func (c *scriptConverter) collect(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "function_declaration", "generator_function_declaration", "method_definition",
		"function_expression", "function", "generator_function", "arrow_function":
		name := c.text(n.ChildByFieldName("name"))
		if name == "" {
			name = c.bindingName(n)
		}
		if name != "" && n.ChildByFieldName("body") != nil {
			c.funcs = append(c.funcs, Function{Name: name, Line: line(n), Body: c.functionBody(n)})
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c.collect(n.NamedChild(i))
	}
}

// bindingName names an anonymous function after what it is assigned to.
func (c *scriptConverter) bindingName(n *sitter.Node) string {
	p := n.Parent()
	if p == nil {
		return ""
	}
	switch p.Type() {
	case "variable_declarator", "public_field_definition":
		return c.text(p.ChildByFieldName("name"))
	case "field_definition":
		return c.text(p.ChildByFieldName("property"))
	case "pair":
		return strings.Trim(c.text(p.ChildByFieldName("key")), `"'`)
	case "assignment_expression":
		return c.text(p.ChildByFieldName("left"))
	}
	return ""
}

// functionBody converts a function body. An expression-bodied arrow
// function becomes a single return.
func (c *scriptConverter) functionBody(n *sitter.Node) []Statement {
	body := n.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	if body.Type() != "statement_block" {
		return []Statement{&Return{Line: line(body), Value: c.text(body)}}
	}
	return c.block(body)
}

// block converts a statement block, or a single statement standing in for
// one (the body of a braceless if or loop).
func (c *scriptConverter) block(n *sitter.Node) []Statement {
	if n == nil {
		return nil
	}
	if n.Type() != "statement_block" {
		return c.statements(n)
	}
	var out []Statement
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, c.statements(n.NamedChild(i))...)
	}
	return out
}

func (c *scriptConverter) statements(n *sitter.Node) []Statement {
	ln := line(n)
	switch n.Type() {
	case "comment", "empty_statement", "hash_bang_line":
		return nil
	case "statement_block":
		return c.block(n)
	case "expression_statement", "lexical_declaration", "variable_declaration",
		"import_statement", "export_statement", "debugger_statement":
		return []Statement{&Simple{Line: ln, Text: c.text(n)}}
	case "return_statement":
		r := &Return{Line: ln}
		if n.NamedChildCount() > 0 {
			r.Value = c.text(n.NamedChild(0))
		}
		return []Statement{r}
	case "break_statement":
		return []Statement{&Break{Line: ln, Label: c.text(n.ChildByFieldName("label"))}}
	case "continue_statement":
		return []Statement{&Continue{Line: ln, Label: c.text(n.ChildByFieldName("label"))}}
	case "throw_statement":
		return []Statement{&Raise{Line: ln, Text: c.text(n)}}
	case "labeled_statement":
		return c.labeled(n)
	case "if_statement":
		return []Statement{c.ifStatement(n)}
	case "for_statement", "while_statement", "do_statement":
		return []Statement{&Loop{Line: ln, Kind: LoopWhile, Header: c.header(n), Body: c.block(n.ChildByFieldName("body"))}}
	case "for_in_statement":
		return []Statement{&Loop{Line: ln, Kind: LoopFor, Header: c.header(n), Body: c.block(n.ChildByFieldName("body"))}}
	case "try_statement":
		return []Statement{c.tryStatement(n)}
	case "switch_statement":
		return []Statement{c.switchStatement(n)}
	default:
		return []Statement{&Generic{Line: ln, Kind: n.Type(), Text: firstLine(c.text(n))}}
	}
}

// header returns the source of a loop up to its body, e.g.
// "for (const x of xs)". A do-while loop keeps its trailing test instead.
func (c *scriptConverter) header(n *sitter.Node) string {
	body := n.ChildByFieldName("body")
	if body == nil {
		return firstLine(c.text(n))
	}
	if n.Type() == "do_statement" {
		return "do while " + c.text(n.ChildByFieldName("condition"))
	}
	return strings.TrimSpace(string(c.src[n.StartByte():body.StartByte()]))
}

func unparen(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func (c *scriptConverter) ifStatement(n *sitter.Node) *If {
	s := &If{
		Line: line(n),
		Test: unparen(c.text(n.ChildByFieldName("condition"))),
		Body: c.block(n.ChildByFieldName("consequence")),
	}
	alt := n.ChildByFieldName("alternative")
	if alt == nil {
		return s
	}
	if alt.Type() == "else_clause" {
		if alt.NamedChildCount() == 0 {
			return s
		}
		alt = alt.NamedChild(0)
	}
	s.Else = c.block(alt)
	return s
}

func (c *scriptConverter) tryStatement(n *sitter.Node) *Try {
	s := &Try{Line: line(n), Body: c.block(n.ChildByFieldName("body"))}
	if h := n.ChildByFieldName("handler"); h != nil {
		clause := "catch"
		if p := h.ChildByFieldName("parameter"); p != nil {
			clause += " (" + c.text(p) + ")"
		}
		s.Handlers = append(s.Handlers, Handler{Line: line(h), Clause: clause, Body: c.block(h.ChildByFieldName("body"))})
	}
	if f := n.ChildByFieldName("finalizer"); f != nil {
		s.Finally = c.block(f.ChildByFieldName("body"))
	}
	return s
}

// labeled attaches a statement label to the loop or switch it names. A
// labeled block keeps its statements, and jumps to its label find no target.
func (c *scriptConverter) labeled(n *sitter.Node) []Statement {
	label := c.text(n.ChildByFieldName("label"))
	body := c.block(n.ChildByFieldName("body"))
	if len(body) == 1 {
		switch s := body[0].(type) {
		case *Loop:
			s.Label = label
		case *Switch:
			s.Label = label
		}
	}
	return body
}

// switchStatement converts a switch. Arms keep their break statements and
// fall through into the next arm.
func (c *scriptConverter) switchStatement(n *sitter.Node) *Switch {
	s := &Switch{Line: line(n), Subject: unparen(c.text(n.ChildByFieldName("value"))), Fallthrough: true}
	body := n.ChildByFieldName("body")
	if body == nil {
		return s
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		arm := body.NamedChild(i)
		if t := arm.Type(); t != "switch_case" && t != "switch_default" {
			continue
		}
		value := arm.ChildByFieldName("value")
		cs := Case{Line: line(arm), Pattern: "default", Default: arm.Type() == "switch_default"}
		if value != nil {
			cs.Pattern = "case " + c.text(value)
		}
		for j := 0; j < int(arm.NamedChildCount()); j++ {
			ch := arm.NamedChild(j)
			if value != nil && ch.StartByte() == value.StartByte() && ch.EndByte() == value.EndByte() {
				continue
			}
			cs.Body = append(cs.Body, c.statements(ch)...)
		}
		s.Cases = append(s.Cases, cs)
	}
	return s
}
