package lsp

import (
	"fmt"
	"sync"

	"github.com/marimo-team/marimo-lsp-go/internal/graph"
	"github.com/marimo-team/marimo-lsp-go/internal/kernel"
	"github.com/marimo-team/marimo-lsp-go/internal/session"
	"github.com/marimo-team/marimo-lsp-go/internal/types"
)

// cellDoc is one cell-document's editor-side state: the identity the
// graph keys on plus the text the view and the graph both need.
type cellDoc struct {
	cellID types.CellId
	name   string
	config kernel.CellConfig
	text   string
}

// notebookState is the dispatch surface's per-notebook workspace
// projection: the Graph Manager (owned here, independent of whether a
// kernel Session exists yet, since session creation is lazy on first
// `run`) plus enough of the editor's notebook document to rebuild a
// session.View on demand. DidChange, DidSave and Diagnostic reach it
// through withNotebook with the workspace mutex held; DidOpen and
// ensureSession touch it without the mutex, on the serial dispatch loop.
type notebookState struct {
	id   types.NotebookId
	path string

	order []types.CellDocumentUri
	docs  map[types.CellDocumentUri]*cellDoc

	graph *graph.Manager
}

// view projects the notebook's current cells into a session.View, in
// editor cell-array order (spec.md §4.F).
func (ns *notebookState) view() *session.View {
	cells := make([]session.Cell, 0, len(ns.order))
	for _, uri := range ns.order {
		d, ok := ns.docs[uri]
		if !ok {
			continue
		}
		cells = append(cells, session.Cell{ID: d.cellID, Name: d.name, Config: d.config, Text: d.text})
	}
	return session.NewView(ns.id, ns.path, cells)
}

// textProvider resolves a CellDocumentUri to its last-known text, for the
// Graph Manager's text_content sync step (spec.md §4.C.4).
func (ns *notebookState) textProvider() graph.TextProvider {
	return func(uri types.CellDocumentUri) (string, bool) {
		d, ok := ns.docs[uri]
		if !ok {
			return "", false
		}
		return d.text, true
	}
}

// workspace owns every open notebook's state, guarded by a single mutex:
// the Graph Manager and the notebook projection are accessed from the
// dispatch surface only, which runs handlers serially (spec.md §5).
type workspace struct {
	mu        sync.Mutex
	notebooks map[types.NotebookId]*notebookState
}

func newWorkspace() *workspace {
	return &workspace{notebooks: map[types.NotebookId]*notebookState{}}
}

func (w *workspace) open(id types.NotebookId, path string, mgr *graph.Manager) *notebookState {
	w.mu.Lock()
	defer w.mu.Unlock()
	ns := &notebookState{id: id, path: path, docs: map[types.CellDocumentUri]*cellDoc{}, graph: mgr}
	w.notebooks[id] = ns
	return ns
}

func (w *workspace) get(id types.NotebookId) (*notebookState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ns, ok := w.notebooks[id]
	return ns, ok
}

func (w *workspace) close(id types.NotebookId) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.notebooks, id)
}

// withNotebook runs fn with the workspace lock held and the notebook
// looked up, so multi-step handlers (update docs, sync graph, build
// view) see a consistent snapshot.
func (w *workspace) withNotebook(id types.NotebookId, fn func(ns *notebookState) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	ns, ok := w.notebooks[id]
	if !ok {
		return fmt.Errorf("lsp: no open notebook %s", id)
	}
	return fn(ns)
}
