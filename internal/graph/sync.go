package graph

import "github.com/marimo-team/marimo-lsp-go/internal/types"

// CellMeta pairs a cell-document URI with the CellId its metadata
// declares, as carried by a notebook-change event's `data` updates or its
// cell-array structure splice.
type CellMeta struct {
	URI    types.CellDocumentUri
	CellID types.CellId
}

// OpenedCell is one cell-document did_open within a change event.
type OpenedCell struct {
	URI  types.CellDocumentUri
	Text string
}

// ChangeEvent is the subset-of-any-kind notebook-document change event
// described by spec.md §4.C.4.
type ChangeEvent struct {
	MetadataCells  []CellMeta
	StructureCells []CellMeta
	DidClose       []types.CellDocumentUri
	DidOpen        []OpenedCell
	TextContent    []types.CellDocumentUri
}

// TextProvider looks up a cell document's current text, used to resolve
// TextContent entries. Returns ok=false if the document is unknown.
type TextProvider func(uri types.CellDocumentUri) (string, bool)

// SyncChange applies one change event in the order fixed by spec.md
// §4.C.4: mappings, then did_close, then did_open, then text_content. This
// prevents adding a cell's text before its mapping exists and prevents
// updating a cell that was closed in the same event.
func (m *Manager) SyncChange(ev ChangeEvent, currentText TextProvider) {
	for _, cm := range ev.MetadataCells {
		m.RememberURI(cm.URI, cm.CellID)
	}
	for _, cm := range ev.StructureCells {
		m.RememberURI(cm.URI, cm.CellID)
	}

	for _, uri := range ev.DidClose {
		id, ok := m.ForgetURI(uri)
		if !ok {
			m.log.Debug("did_close: no cell mapping for uri", "uri", uri)
			continue
		}
		m.RemoveCell(id)
	}

	for _, opened := range ev.DidOpen {
		id, ok := m.LookupCellID(opened.URI)
		if !ok {
			m.log.Warn("did_open: no cell mapping for uri", "uri", opened.URI)
			continue
		}
		m.UpdateCell(id, opened.Text)
	}

	for _, uri := range ev.TextContent {
		id, ok := m.LookupCellID(uri)
		if !ok {
			m.log.Warn("text_content: no cell mapping for uri", "uri", uri)
			continue
		}
		text, ok := currentText(uri)
		if !ok {
			m.log.Warn("text_content: no document text for uri", "uri", uri)
			continue
		}
		m.UpdateCell(id, text)
	}
}
