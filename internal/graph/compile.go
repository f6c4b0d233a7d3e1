// Package graph implements the per-notebook incremental dependency graph:
// compilation, staleness tracking, diagnostic derivation, and the
// CellDocumentUri->CellId LRU, per spec.md §4.C.
//
// Grounded in the teacher's own small, line-oriented parsing style
// (environment/filesystem.go's line-scanning helpers); CompiledCell
// extraction here stands in for the original's ast-based compile_cell
// (spec.md §1 excludes the kernel's *execution* semantics, not the
// graph's own compilation step, which remains core and is reimplemented
// rather than delegated, per SPEC_FULL.md §4.C).
package graph

import (
	"fmt"
	"regexp"
	"strings"
)

// Declaration is one assignment-target occurrence of a name within a
// compiled cell, anchored at its token's column span so a
// multiple-definition diagnostic can point at it (spec.md §8: "range spans
// the column interval [col_offset, end_col_offset] of an ast.Name store
// node").
type Declaration struct {
	Name     string
	Line     int // 0-based
	Col      int // 0-based, inclusive
	EndCol   int // 0-based, exclusive
}

// CompiledCell is the product of compiling one cell's source: every
// declared name (with position) and the set of names it references but
// does not declare (its free variables, which become graph edges).
type CompiledCell struct {
	Declared   []Declaration
	Referenced map[string]bool
}

// SyntaxError is returned by Compile when source could not be parsed; the
// cell stays absent from the graph per spec.md §3's CompiledCell
// invariant.
type SyntaxError struct {
	Message string
	Line    int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line+1, e.Message)
}

var (
	identRe   = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	assignRe  = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*(\s*,\s*[A-Za-z_][A-Za-z0-9_]*)*)\s*(\+=|-=|\*=|/=|//=|%=|\*\*=|&=|\|=|\^=|>>=|<<=|=)`)
	defRe     = regexp.MustCompile(`^(?:async\s+)?def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	classRe   = regexp.MustCompile(`^class\s+([A-Za-z_][A-Za-z0-9_]*)\b`)
	forRe     = regexp.MustCompile(`^for\s+(.+?)\s+in\s+`)
	withAsRe  = regexp.MustCompile(`as\s+([A-Za-z_][A-Za-z0-9_]*)`)
	importRe  = regexp.MustCompile(`^import\s+(.+)$`)
	fromImpRe = regexp.MustCompile(`^from\s+\S+\s+import\s+(.+)$`)
)

var pyKeywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
	"self": true,
}

// Compile extracts declared and referenced names from a cell's source.
// It rejects source with unbalanced brackets as a syntax error; everything
// else is treated as well-formed (this is a deliberately approximate
// stand-in for a full Python parser, matching the line-oriented scanning
// style the teacher uses elsewhere rather than vendoring a parser).
func Compile(source string) (*CompiledCell, *SyntaxError) {
	if err := checkBalanced(source); err != nil {
		return nil, err
	}

	cc := &CompiledCell{Referenced: map[string]bool{}}
	declaredSet := map[string]bool{}

	lines := strings.Split(source, "\n")
	for lineNo, raw := range lines {
		line := stripComment(raw)
		trimmed := strings.TrimLeft(line, " \t")
		indent := len(line) - len(trimmed)

		for _, name := range declarationNames(trimmed, lineNo, indent) {
			declaredSet[name.Name] = true
			cc.Declared = append(cc.Declared, name)
		}
	}

	for _, raw := range lines {
		line := stripComment(raw)
		for _, loc := range identRe.FindAllStringIndex(line, -1) {
			name := line[loc[0]:loc[1]]
			if pyKeywords[name] {
				continue
			}
			if !declaredSet[name] {
				cc.Referenced[name] = true
			}
		}
	}

	return cc, nil
}

func stripComment(line string) string {
	inStr := byte(0)
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inStr != 0 {
			if c == inStr && (i == 0 || line[i-1] != '\\') {
				inStr = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inStr = c
		case '#':
			return line[:i]
		}
	}
	return line
}

func declarationNames(trimmed string, lineNo, indent int) []Declaration {
	var out []Declaration

	if m := defRe.FindStringSubmatch(trimmed); m != nil {
		out = append(out, nameDecl(m[1], trimmed, lineNo, indent))
		return out
	}
	if m := classRe.FindStringSubmatch(trimmed); m != nil {
		out = append(out, nameDecl(m[1], trimmed, lineNo, indent))
		return out
	}
	if floc := forRe.FindStringSubmatchIndex(trimmed); floc != nil {
		targets := trimmed[floc[2]:floc[3]]
		base := floc[2]
		for _, loc := range identRe.FindAllStringIndex(targets, -1) {
			name := targets[loc[0]:loc[1]]
			if pyKeywords[name] {
				continue
			}
			out = append(out, Declaration{Name: name, Line: lineNo, Col: indent + base + loc[0], EndCol: indent + base + loc[1]})
		}
		return out
	}
	if m := importRe.FindStringSubmatch(trimmed); !fromImpRe.MatchString(trimmed) && m != nil {
		for _, part := range strings.Split(m[1], ",") {
			part = strings.TrimSpace(part)
			if as := withAsRe.FindStringSubmatch(part); as != nil {
				out = append(out, nameDecl(as[1], trimmed, lineNo, indent))
				continue
			}
			top := strings.SplitN(strings.TrimSpace(part), ".", 2)[0]
			if top != "" {
				out = append(out, nameDecl(top, trimmed, lineNo, indent))
			}
		}
		return out
	}
	if m := fromImpRe.FindStringSubmatch(trimmed); m != nil {
		for _, part := range strings.Split(m[1], ",") {
			part = strings.TrimSpace(part)
			if as := withAsRe.FindStringSubmatch(part); as != nil {
				out = append(out, nameDecl(as[1], trimmed, lineNo, indent))
				continue
			}
			if part != "" && part != "*" {
				out = append(out, nameDecl(part, trimmed, lineNo, indent))
			}
		}
		return out
	}
	if as := withAsRe.FindStringSubmatch(trimmed); as != nil && strings.HasPrefix(trimmed, "with ") {
		out = append(out, nameDecl(as[1], trimmed, lineNo, indent))
		return out
	}
	if loc := assignRe.FindStringSubmatchIndex(trimmed); loc != nil {
		opEnd := loc[7] // end of the operator group (group 3)
		if opEnd < len(trimmed) && trimmed[opEnd] == '=' {
			// "==" comparison, not an assignment; not a declaration.
			return out
		}
		targets := trimmed[loc[2]:loc[3]]
		for _, part := range strings.Split(targets, ",") {
			name := strings.TrimSpace(part)
			if name != "" && name != "_" {
				col := strings.Index(trimmed, name)
				out = append(out, Declaration{Name: name, Line: lineNo, Col: indent + col, EndCol: indent + col + len(name)})
			}
		}
	}
	return out
}

func nameDecl(name, trimmed string, lineNo, indent int) Declaration {
	col := strings.Index(trimmed, name)
	if col < 0 {
		col = 0
	}
	return Declaration{Name: name, Line: lineNo, Col: indent + col, EndCol: indent + col + len(name)}
}

func checkBalanced(source string) *SyntaxError {
	stack := make([]byte, 0, 8)
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	inStr := byte(0)
	line := 0
	for i := 0; i < len(source); i++ {
		c := source[i]
		if c == '\n' {
			line++
		}
		if inStr != 0 {
			if c == inStr && (i == 0 || source[i-1] != '\\') {
				inStr = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inStr = c
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return &SyntaxError{Message: fmt.Sprintf("unexpected %q", c), Line: line}
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) != 0 {
		return &SyntaxError{Message: "unbalanced brackets", Line: line}
	}
	return nil
}

// References reports whether the compiled module has a free reference to
// name (used to derive dependency-graph edges).
func (cc *CompiledCell) References(name string) bool {
	return cc.Referenced[name]
}
