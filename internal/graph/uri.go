package graph

import "github.com/marimo-team/marimo-lsp-go/internal/types"

// RememberURI populates the CellDocumentUri->CellId LRU, per spec.md
// §4.C.3. It is called whenever a notebook-change event carries cell
// metadata.
func (m *Manager) RememberURI(uri types.CellDocumentUri, id types.CellId) {
	m.uriCache.Add(uri, id)
}

// LookupCellID resolves a CellDocumentUri to its CellId. A miss is
// expected during normal edits before the first metadata-bearing change
// event arrives; callers log accordingly (warn on did_open/update, debug
// on did_close, per spec.md §4.C.3).
func (m *Manager) LookupCellID(uri types.CellDocumentUri) (types.CellId, bool) {
	return m.uriCache.Get(uri)
}

// ForgetURI removes uri from the LRU, returning the CellId it was mapped
// to (if any), for did_close handling.
func (m *Manager) ForgetURI(uri types.CellDocumentUri) (types.CellId, bool) {
	id, ok := m.uriCache.Peek(uri)
	if ok {
		m.uriCache.Remove(uri)
	}
	return id, ok
}
