package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marimo-team/marimo-lsp-go/internal/types"
)

func TestUpdateCellNoOpOnUnchangedSource(t *testing.T) {
	m := NewManager(nil)
	require.True(t, m.UpdateCell("cell-a", "x = 1"))
	m.Publish()
	assert.False(t, m.Stale())

	assert.False(t, m.UpdateCell("cell-a", "x = 1"))
	assert.False(t, m.Stale())
}

func TestUpdateThenRemoveCellPurgesRegistration(t *testing.T) {
	m := NewManager(nil)
	m.UpdateCell("cell-a", "x = 1")
	require.True(t, m.HasCell("cell-a"))

	m.RemoveCell("cell-a")
	assert.False(t, m.HasCell("cell-a"))
	_, vars := m.Publish()
	assert.Empty(t, vars)
}

func TestSyntaxErrorKeepsCellOutOfGraph(t *testing.T) {
	m := NewManager(nil)
	changed := m.UpdateCell("cell-a", "x = (1")
	assert.True(t, changed)
	assert.False(t, m.HasCell("cell-a"))
}

func TestDidCloseRemovesMappedCell(t *testing.T) {
	m := NewManager(nil)
	m.RememberURI("cell-a-doc", "cell-a")
	m.SyncChange(ChangeEvent{
		DidOpen: []OpenedCell{{URI: "cell-a-doc", Text: "x = 1"}},
	}, nil)
	require.True(t, m.HasCell("cell-a"))

	m.SyncChange(ChangeEvent{DidClose: []types.CellDocumentUri{"cell-a-doc"}}, nil)
	assert.False(t, m.HasCell("cell-a"))
}

func TestCycleDetection(t *testing.T) {
	m := NewManager(nil)
	m.UpdateCell("cell-a", "a = b")
	m.UpdateCell("cell-b", "b = a")

	diags, vars := m.Publish()

	var cycleDiags []Diagnostic
	for _, d := range diags {
		if d.Kind == DiagnosticCycle {
			cycleDiags = append(cycleDiags, d)
		}
	}
	assert.Len(t, cycleDiags, 2)
	for _, d := range cycleDiags {
		assert.Equal(t, 0, d.StartLine)
		assert.Equal(t, 0, d.StartCol)
	}

	names := make(map[string]bool)
	for _, v := range vars {
		names[v.Name] = true
	}
	assert.True(t, names["a"])
	assert.True(t, names["b"])
}

func TestMultipleDefinitionDiagnostic(t *testing.T) {
	m := NewManager(nil)
	m.UpdateCell("cell-a", "x = 1")
	m.UpdateCell("cell-b", "x = 2")

	diags, _ := m.Publish()

	var multi []Diagnostic
	for _, d := range diags {
		if d.Kind == DiagnosticMultipleDefinition {
			multi = append(multi, d)
		}
	}
	require.Len(t, multi, 2)
	for _, d := range multi {
		assert.Equal(t, 0, d.StartCol)
		assert.Equal(t, 1, d.EndCol)
	}
}

func TestIncrementalNoOpEmitsNoNewVariables(t *testing.T) {
	m := NewManager(nil)
	m.UpdateCell("cell-a", "x = 1")
	m.Publish()

	changed := m.UpdateCell("cell-a", "x = 1")
	assert.False(t, changed)
	assert.False(t, m.Stale())
}

func TestPublishClearsStaleAndCaches(t *testing.T) {
	m := NewManager(nil)
	m.UpdateCell("cell-a", "x = 1")
	assert.True(t, m.Stale())

	diags1, _ := m.Publish()
	assert.False(t, m.Stale())

	diags2, _ := m.Publish()
	assert.Equal(t, diags1, diags2)
}

func TestLRUMappingRoundtrip(t *testing.T) {
	m := NewManager(nil)
	m.RememberURI("doc://a", "cell-a")

	id, ok := m.LookupCellID("doc://a")
	require.True(t, ok)
	assert.Equal(t, types.CellId("cell-a"), id)

	id, ok = m.ForgetURI("doc://a")
	require.True(t, ok)
	assert.Equal(t, types.CellId("cell-a"), id)

	_, ok = m.LookupCellID("doc://a")
	assert.False(t, ok)
}

func TestSyncChangeOrdering(t *testing.T) {
	m := NewManager(nil)
	docText := map[types.CellDocumentUri]string{
		"doc://a": "a = 1",
	}

	m.SyncChange(ChangeEvent{
		MetadataCells: []CellMeta{{URI: "doc://a", CellID: "cell-a"}},
		DidOpen:       []OpenedCell{{URI: "doc://a", Text: "a = 1"}},
		TextContent:   []types.CellDocumentUri{"doc://a"},
	}, func(uri types.CellDocumentUri) (string, bool) {
		text, ok := docText[uri]
		return text, ok
	})

	require.True(t, m.HasCell("cell-a"))
}
