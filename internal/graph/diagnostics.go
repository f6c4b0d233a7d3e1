package graph

import (
	"fmt"
	"strings"

	"github.com/marimo-team/marimo-lsp-go/internal/types"
)

// cycleDiagnostics implements spec.md §4.C.2's cycle diagnostic: one
// diagnostic per cell in every SCC of size >= 2 (or self-loop), anchored
// at (0,0)-(0,0), naming every cycle member in edge order. Must be called
// with m.mu held.
func (m *Manager) cycleDiagnostics(ids []types.CellId, edges map[types.CellId][]types.CellId) []Diagnostic {
	var out []Diagnostic
	for _, comp := range cycles(ids, edges) {
		names := make([]string, len(comp))
		for i, id := range comp {
			names[i] = m.displayNameLocked(id)
		}
		msg := fmt.Sprintf("This cell is part of a cycle: %s", strings.Join(names, " -> "))
		for _, id := range comp {
			out = append(out, Diagnostic{
				Kind:    DiagnosticCycle,
				CellID:  id,
				Message: msg,
			})
		}
	}
	return out
}

// multipleDefinitionDiagnostics implements spec.md §4.C.2: for every name
// with >= 2 defining cells, walk each defining cell's declarations and
// emit one diagnostic per assignment-target occurrence, anchored at its
// token span, naming the *other* cells that also define the name. Must be
// called with m.mu held.
func (m *Manager) multipleDefinitionDiagnostics(defs map[string][]types.CellId) []Diagnostic {
	var out []Diagnostic
	for name, cellIDs := range defs {
		if len(cellIDs) < 2 {
			continue
		}
		for _, id := range cellIDs {
			cc := m.compiled[id]
			if cc == nil {
				continue
			}
			var others []string
			for _, other := range cellIDs {
				if other != id {
					others = append(others, m.displayNameLocked(other))
				}
			}
			msg := fmt.Sprintf("%q is also defined in %s", name, strings.Join(others, ", "))
			for _, d := range cc.Declared {
				if d.Name != name {
					continue
				}
				out = append(out, Diagnostic{
					Kind:      DiagnosticMultipleDefinition,
					CellID:    id,
					StartLine: d.Line,
					StartCol:  d.Col,
					EndLine:   d.Line,
					EndCol:    d.EndCol,
					Message:   msg,
				})
			}
		}
	}
	return out
}

func (m *Manager) displayNameLocked(id types.CellId) string {
	idx, ok := m.order[id]
	if !ok {
		return string(id)
	}
	return fmt.Sprintf("cell-%d", idx+1)
}
