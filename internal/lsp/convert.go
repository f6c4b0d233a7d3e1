package lsp

import (
	"fmt"
	"regexp"
	"strings"

	godiffpatch "github.com/sourcegraph/go-diff-patch"
)

// Converter turns a flat list of cells (the wire shape marimo.api's
// serialize/deserialize methods and the marimo.convert command share)
// into and out of marimo's cell-decorated Python source. The notebook
// source file's *format* is explicitly out of scope (spec.md §1
// Non-goals: "the format of the notebook source file (serialization is
// delegated)"); this is a minimal, self-contained stand-in for the
// external converter the original delegates to
// (marimo._convert.converters.MarimoConvert), good enough to round-trip
// the cell/name/code shape the dispatch surface actually needs.
type Converter struct{}

// IRCell is one cell of the notebook intermediate representation
// exchanged by serialize/deserialize (original_source's
// NotebookSerialization, narrowed to the fields this server touches).
type IRCell struct {
	Name string `json:"name,omitempty"`
	Code string `json:"code"`
}

var appCellHeaderRe = regexp.MustCompile(`^def\s+(\w+)\s*\([^)]*\)\s*:`)

// ToPy renders cells as a marimo-decorated Python module.
func (Converter) ToPy(cells []IRCell) string {
	var b strings.Builder
	b.WriteString("import marimo\n\napp = marimo.App()\n\n")
	for _, c := range cells {
		name := c.Name
		if name == "" {
			name = "_"
		}
		b.WriteString("@app.cell\n")
		fmt.Fprintf(&b, "def %s():\n", name)
		body := strings.TrimRight(c.Code, "\n")
		if body == "" {
			b.WriteString("    pass\n")
		} else {
			for _, line := range strings.Split(body, "\n") {
				b.WriteString("    " + line + "\n")
			}
		}
		b.WriteString("    return\n\n\n")
	}
	return b.String()
}

// ToIR parses a marimo-decorated Python module back into cells. It is
// structural, not a real parser: it recognizes `@app.cell` / `def
// name():` pairs the way ToPy emits them, which covers both the
// serialize/deserialize round trip and files converted by this same
// server. Trailing newlines of a cell's code are not kept, and a cell
// with empty code is written by ToPy as `pass` and reads back as `pass`.
func (Converter) ToIR(source string) []IRCell {
	lines := strings.Split(source, "\n")
	var cells []IRCell
	for i := 0; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "@app.cell" {
			continue
		}
		if i+1 >= len(lines) {
			break
		}
		m := appCellHeaderRe.FindStringSubmatch(strings.TrimSpace(lines[i+1]))
		if m == nil {
			continue
		}
		name := m[1]
		var body []string
		j := i + 2
		for ; j < len(lines); j++ {
			trimmed := strings.TrimSpace(lines[j])
			if trimmed == "" {
				body = append(body, "")
				continue
			}
			if !strings.HasPrefix(lines[j], "    ") {
				break
			}
			if trimmed == "return" {
				j++
				break
			}
			body = append(body, strings.TrimPrefix(lines[j], "    "))
		}
		for len(body) > 0 && body[len(body)-1] == "" {
			body = body[:len(body)-1]
		}
		code := strings.Join(body, "\n")
		if name == "_" {
			name = ""
		}
		cells = append(cells, IRCell{Name: name, Code: code})
		i = j - 1
	}
	return cells
}

func (s *Server) serialize(c *SerializeCommand) (any, error) {
	cells := make([]IRCell, len(c.Cells))
	for i, sc := range c.Cells {
		cells[i] = IRCell{Name: sc.Name, Code: sc.Code}
	}
	return map[string]any{"source": Converter{}.ToPy(cells)}, nil
}

func (s *Server) deserialize(c *DeserializeCommand) (any, error) {
	cells := Converter{}.ToIR(c.Source)
	return map[string]any{"cells": cells}, nil
}

// WorkspaceEdit is the minimal shape marimo.convert hands back for the
// editor to apply: a unified diff against the sibling `<name>_mo.py`
// file it should create/replace (github.com/sourcegraph/go-diff-patch,
// carried over from the teacher's own file-edit path in
// environment/filesystem.go per SPEC_FULL.md DOMAIN STACK).
type WorkspaceEdit struct {
	Path  string `json:"path"`
	Patch string `json:"patch"`
}

// Convert implements the `marimo.convert` command (spec.md §6): produce
// a sibling `<name>_mo.py` with transformed content via a diff the
// editor applies as a workspace edit. It only returns that edit; it sends
// no request asking the editor to display the new file.
func (s *Server) Convert(path, source string) (*WorkspaceEdit, error) {
	target := convertedSiblingPath(path)
	newContents := Converter{}.ToPy([]IRCell{{Code: source}})
	patch := godiffpatch.GeneratePatch(target, "", newContents)
	return &WorkspaceEdit{Path: target, Patch: patch}, nil
}

func convertedSiblingPath(path string) string {
	if strings.HasSuffix(path, ".ipynb") {
		return strings.TrimSuffix(path, ".ipynb") + "_mo.py"
	}
	return strings.TrimSuffix(path, ".py") + "_mo.py"
}
