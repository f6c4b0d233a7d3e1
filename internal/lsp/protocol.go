package lsp

import (
	"encoding/json"

	"github.com/marimo-team/marimo-lsp-go/internal/types"
)

// The wire shapes below mirror LSP 3.17's notebook-document
// synchronization messages (NotebookDocumentSyncClientCapabilities'
// companion structures: NotebookDocument, NotebookCell,
// NotebookDocumentChangeEvent) closely enough that an editor speaking the
// standard protocol needs no bespoke extension to drive this server; the
// only marimo-specific addition is reading the CellId out of each cell's
// metadata.stableId (spec.md §3).

// TextDocumentItem is a cell's companion text document at open time.
type TextDocumentItem struct {
	URI  types.CellDocumentUri `json:"uri"`
	Text string                `json:"text"`
}

// TextDocumentIdentifier names a text document without its content.
type TextDocumentIdentifier struct {
	URI types.CellDocumentUri `json:"uri"`
}

// NotebookCell is one entry of a NotebookDocument's cell array.
type NotebookCell struct {
	DocumentURI types.CellDocumentUri `json:"document"`
	Metadata    map[string]any        `json:"metadata,omitempty"`
}

func (c NotebookCell) cellID() types.CellId {
	if c.Metadata == nil {
		return ""
	}
	if v, ok := c.Metadata["stableId"].(string); ok {
		return types.CellId(v)
	}
	return ""
}

func (c NotebookCell) name() string {
	if c.Metadata == nil {
		return "_"
	}
	if v, ok := c.Metadata["name"].(string); ok && v != "" {
		return v
	}
	return "_"
}

func (c NotebookCell) config() map[string]any {
	if c.Metadata == nil {
		return map[string]any{}
	}
	if v, ok := c.Metadata["config"].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

// DidOpenNotebookParams is notebookDocument/didOpen's params.
type DidOpenNotebookParams struct {
	NotebookDocument struct {
		URI      types.NotebookId `json:"uri"`
		Metadata map[string]any   `json:"metadata,omitempty"`
		Cells    []NotebookCell   `json:"cells"`
	} `json:"notebookDocument"`
	CellTextDocuments []TextDocumentItem `json:"cellTextDocuments"`
}

// notebookCellArrayChange is the positional splice half of a structural
// change (LSP's NotebookDocumentCellChangeStructure.array).
type notebookCellArrayChange struct {
	Start  int            `json:"start"`
	Delete int            `json:"deleteCount"`
	Cells  []NotebookCell `json:"cells,omitempty"`
}

type notebookCellTextContentChange struct {
	Document TextDocumentIdentifier `json:"document"`
	Text     string                 `json:"text"`
}

// DidChangeNotebookParams is notebookDocument/didChange's params,
// matching spec.md §4.C.4's four update kinds.
type DidChangeNotebookParams struct {
	NotebookDocument struct {
		URI types.NotebookId `json:"uri"`
	} `json:"notebookDocument"`
	Change struct {
		Cells *struct {
			Structure *struct {
				Array    notebookCellArrayChange   `json:"array"`
				DidOpen  []TextDocumentItem        `json:"didOpen,omitempty"`
				DidClose []TextDocumentIdentifier  `json:"didClose,omitempty"`
			} `json:"structure,omitempty"`
			Data        []NotebookCell                  `json:"data,omitempty"`
			TextContent []notebookCellTextContentChange `json:"textContent,omitempty"`
		} `json:"cells,omitempty"`
	} `json:"change"`
}

// DidSaveNotebookParams is notebookDocument/didSave's params.
type DidSaveNotebookParams struct {
	NotebookDocument struct {
		URI types.NotebookId `json:"uri"`
	} `json:"notebookDocument"`
}

// DidCloseNotebookParams is notebookDocument/didClose's params.
type DidCloseNotebookParams struct {
	NotebookDocument struct {
		URI types.NotebookId `json:"uri"`
	} `json:"notebookDocument"`
	CellTextDocuments []TextDocumentIdentifier `json:"cellTextDocuments"`
}

// DiagnosticParams is textDocument/diagnostic's params; only the
// notebook-identifying part is used (spec.md §6: the report itself is
// always empty, diagnostics travel over marimo/operation instead).
type DiagnosticParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DiagnosticReport is the (always-empty) report textDocument/diagnostic
// must still return to satisfy the standard protocol.
type DiagnosticReport struct {
	Kind  string `json:"kind"`
	Items []any  `json:"items"`
}

// CodeActionParams is textDocument/codeAction's params.
type CodeActionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// CodeAction is one offered action.
type CodeAction struct {
	Title   string         `json:"title"`
	Kind    string         `json:"kind"`
	Command *CodeActionCmd `json:"command,omitempty"`
}

// CodeActionCmd is the command a CodeAction triggers on acceptance.
type CodeActionCmd struct {
	Title     string            `json:"title"`
	Command   string            `json:"command"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

// CompletionParams is textDocument/completion's params.
type CompletionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     struct {
		Line      int `json:"line"`
		Character int `json:"character"`
	} `json:"position"`
}

// CompletionItem is one offered completion.
type CompletionItem struct {
	Label            string `json:"label"`
	Kind             int    `json:"kind"`
	Detail           string `json:"detail,omitempty"`
	Documentation    string `json:"documentation,omitempty"`
	InsertText       string `json:"insertText"`
	InsertTextFormat int    `json:"insertTextFormat"`
}

const (
	completionKindSnippet   = 15
	insertTextFormatSnippet = 2
)

// OperationNotification is the `marimo/operation` notification shape
// (spec.md §6).
type OperationNotification struct {
	NotebookURI types.NotebookId `json:"notebookUri"`
	Operation   any              `json:"operation"`
}

// DapNotification is the `marimo/dap` notification shape (spec.md §6).
type DapNotification struct {
	SessionID string `json:"sessionId"`
	Message   any    `json:"message"`
}

// variablesOperation is the server-derived operation announced alongside
// kernel-forwarded ones, per spec.md §4.C.5.
type variablesOperation struct {
	Op        string   `json:"op"`
	Variables []varDTO `json:"variables"`
}

type varDTO struct {
	Name       string         `json:"name"`
	DeclaredBy []types.CellId `json:"declared_by"`
	UsedBy     []types.CellId `json:"used_by"`
}

// diagnosticOperation is the server-derived operation carrying
// cycle/multiple-definition diagnostics.
type diagnosticOperation struct {
	Op          string       `json:"op"`
	Diagnostics []diagDTO    `json:"diagnostics"`
}

type diagDTO struct {
	Kind      string       `json:"kind"`
	CellID    types.CellId `json:"cell_id"`
	StartLine int          `json:"start_line"`
	StartCol  int          `json:"start_col"`
	EndLine   int          `json:"end_line"`
	EndCol    int          `json:"end_col"`
	Message   string       `json:"message"`
}
