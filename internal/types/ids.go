// Package types holds the small set of identifier types shared across the
// session, graph, and kernel packages, matching spec.md §3's data model:
// NotebookId, CellId, and the CellDocumentUri the editor keys cell-scoped
// text changes by.
package types

// NotebookId is the opaque, editor-supplied URI that identifies a
// notebook's session. The scheme ("untitled:" vs. "file:") distinguishes
// persistent notebooks from scratch ones (spec.md §3).
type NotebookId string

// CellId is the stable identifier of a cell, sourced from cell metadata's
// stableId field. It is unique within its notebook and stable across text
// edits; it is distinct from a cell's text-document URI.
type CellId string

// CellDocumentUri is the text-document URI the editor uses for a cell's
// companion document. It may embed a CellId as a URI fragment but is not
// interchangeable with one after edits (spec.md §3).
type CellDocumentUri string
