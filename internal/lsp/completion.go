package lsp

import "strings"

// appCellCompletion offers the `@app.cell` snippet when the current line
// prefix matches `@`, `@a`, `@ap`, or `@app`, the document is a `.py`
// file, and its text contains `app = marimo.App(` — ported from
// original_source's completions.py. No completions are offered for cell
// documents (their URI carries a `#` fragment).
func appCellCompletion(uri string, documentText string, line, character int) []CompletionItem {
	if strings.Contains(uri, "#") {
		return nil
	}
	if !strings.HasSuffix(uri, ".py") {
		return nil
	}
	if !strings.Contains(documentText, "app = marimo.App(") {
		return nil
	}

	lines := strings.Split(documentText, "\n")
	if line < 0 || line >= len(lines) {
		return nil
	}
	current := lines[line]
	if character < 0 || character > len(current) {
		return nil
	}
	prefix := strings.TrimSpace(current[:character])

	switch prefix {
	case "@", "@a", "@ap", "@app":
		return []CompletionItem{{
			Label:            "@app.cell",
			Kind:             completionKindSnippet,
			Detail:           "Insert a new marimo cell",
			Documentation:    "Creates a new marimo cell",
			InsertText:       "@app.cell\ndef _():\n    ${2:}\n    return",
			InsertTextFormat: insertTextFormatSnippet,
		}}
	default:
		return nil
	}
}
