// Package session binds one notebook to one kernel: construction of the
// (Supervisor, Transport, Consumer) tuple, control routing, and the
// session registry, per spec.md §4.D/§4.E/§4.F. A Session holds no Graph
// Manager; internal/lsp keeps one per open notebook, independent of
// whether a session exists.
package session

import (
	"github.com/marimo-team/marimo-lsp-go/internal/kernel"
	"github.com/marimo-team/marimo-lsp-go/internal/types"
)

// Cell is one code cell as projected from the editor's notebook document:
// CellId from metadata, name from metadata or "_", config from metadata
// or {}, and text drawn from the companion text-document store (spec.md
// §4.F).
type Cell struct {
	ID     types.CellId
	Name   string
	Config kernel.CellConfig
	Text   string
}

// NotebookView is a projection of the editor's current notebook document.
// It is rebuilt, not mutated, whenever the editor signals
// open/change/save (spec.md §4.F): callers construct a fresh View and
// call Session.Refresh rather than poking at an existing one.
type View struct {
	NotebookID types.NotebookId
	Path       string // backing file path, empty for untitled notebooks
	Cells      []Cell
}

// NewView copies codeCells, in the given order, into a fresh View. It
// does not filter by cell kind, and neither does the dispatch surface
// that calls it (NotebookCell carries no kind field): every cell the
// editor sends with a stableId ends up in the View.
func NewView(notebookID types.NotebookId, path string, codeCells []Cell) *View {
	cells := make([]Cell, len(codeCells))
	copy(cells, codeCells)
	return &View{NotebookID: notebookID, Path: path, Cells: cells}
}
