// Package facts holds the read-only snapshot of extracted program facts the
// taint engine runs over: assignments, call arguments, returns and symbols.
package facts

// Assignment is a row of the assignments table: Target <- Expr.
type Assignment struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Target   string `json:"target_var"`
	Expr     string `json:"source_expr"`
	Function string `json:"in_function"`
}

// CallArg is a row of the function_call_args table: argument Index of a call
// to Callee made from Caller.
type CallArg struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Caller string `json:"caller_function"`
	Callee string `json:"callee_function"`
	Index  int    `json:"argument_index"`
	Expr   string `json:"argument_expr"`
	Param  string `json:"param_name"`
}

// Return is a row of the function_returns table.
type Return struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function_name"`
	Expr     string `json:"return_expr"`
}

// Symbol is a row of the symbols table.
type Symbol struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Type string `json:"type"`
	Line int    `json:"line"`
}

// IsFunction reports whether the symbol defines a callable.
func (s Symbol) IsFunction() bool {
	return s.Type == "function" || s.Type == "method"
}

// Tables is the raw content of the four fact tables.
type Tables struct {
	Assignments []Assignment
	CallArgs    []CallArg
	Returns     []Return
	Symbols     []Symbol
}

// Scope identifies one function of one file. Module-level code has an empty
// Function.
type Scope struct {
	File     string `json:"file"`
	Function string `json:"function"`
}

// Skipped counts the malformed rows dropped while indexing.
type Skipped struct {
	Assignments int `json:"assignments"`
	CallArgs    int `json:"call_args"`
	Returns     int `json:"returns"`
	Symbols     int `json:"symbols"`
}

// Total returns the number of skipped rows across all tables.
func (s Skipped) Total() int {
	return s.Assignments + s.CallArgs + s.Returns + s.Symbols
}
