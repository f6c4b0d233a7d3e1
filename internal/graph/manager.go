package graph

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/marimo-team/marimo-lsp-go/internal/types"
)

// lruCapacity is the CellDocumentUri->CellId cache size fixed by
// spec.md §3 and §8.
const lruCapacity = 1000

// Diagnostic is a server-derived finding surfaced to the editor: either a
// cycle or a multiple-definition conflict (spec.md §4.C.2).
type Diagnostic struct {
	Kind      string
	CellID    types.CellId
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
	Message   string
}

const (
	DiagnosticCycle              = "cycle"
	DiagnosticMultipleDefinition = "multiple-definition"
)

// Variable is the per-name summary derived from the dependency graph and
// emitted alongside diagnostics (spec.md §4.C.5).
type Variable struct {
	Name       string
	DeclaredBy []types.CellId
	UsedBy     []types.CellId
}

// Manager is the per-notebook incremental dependency graph: compiled
// cells, staleness, and derived diagnostics, guarded by a mutex because
// the pump thread must never mutate it directly (spec.md §5 — only the
// async dispatch thread calls in, but the mutex makes that invariant
// cheap to enforce rather than assumed).
type Manager struct {
	mu  sync.Mutex
	log *slog.Logger

	orderCounter int
	order        map[types.CellId]int

	source   map[types.CellId]string
	compiled map[types.CellId]*CompiledCell

	stale     bool
	diagValid bool
	diagCache []Diagnostic
	varCache  []Variable

	uriCache *lru.Cache[types.CellDocumentUri, types.CellId]
}

// NewManager constructs an empty graph manager for one notebook.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	cache, _ := lru.New[types.CellDocumentUri, types.CellId](lruCapacity)
	return &Manager{
		log:      log,
		order:    map[types.CellId]int{},
		source:   map[types.CellId]string{},
		compiled: map[types.CellId]*CompiledCell{},
		uriCache: cache,
	}
}

func (m *Manager) touchOrder(id types.CellId) {
	if _, ok := m.order[id]; !ok {
		m.order[id] = m.orderCounter
		m.orderCounter++
	}
}

// DisplayName renders a cell as "cell-<index>", where index is 1-based in
// the order the manager first saw each cell id. Cells loaded together at
// notebook open are numbered in notebook order; a cell added later is
// numbered after every cell seen before it, whatever its position, and
// removing a cell does not renumber the others. An unknown id renders as
// itself.
func (m *Manager) DisplayName(id types.CellId) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.order[id]
	if !ok {
		return string(id)
	}
	return fmt.Sprintf("cell-%d", idx+1)
}

// UpdateCell implements spec.md §4.C.1. It returns false (a no-op) when
// the stored source already equals source.
func (m *Manager) UpdateCell(id types.CellId, source string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.source[id]; ok && prev == source {
		return false
	}
	m.touchOrder(id)
	m.source[id] = source
	delete(m.compiled, id)

	if cc, err := Compile(source); err == nil {
		m.compiled[id] = cc
	} else {
		m.log.Debug("cell compile failed", "cell", id, "error", err)
	}

	m.invalidate()
	return true
}

// RemoveCell implements spec.md §4.C.1's remove_cell: purges source,
// compiled artefact, and the cell's graph registration.
func (m *Manager) RemoveCell(id types.CellId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.source[id]; !ok {
		return
	}
	delete(m.source, id)
	delete(m.compiled, id)
	m.invalidate()
}

func (m *Manager) invalidate() {
	m.stale = true
	m.diagValid = false
}

// Stale reports whether publishable state has changed since the last
// Publish call.
func (m *Manager) Stale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stale
}

// Cells returns the CellIds currently registered in the graph (i.e. those
// that compiled successfully), in the order the manager first saw them
// (see DisplayName).
func (m *Manager) Cells() []types.CellId {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]types.CellId, 0, len(m.compiled))
	for id := range m.compiled {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m.order[ids[i]] < m.order[ids[j]] })
	return ids
}

// HasCell reports whether id compiled successfully and is registered.
func (m *Manager) HasCell(id types.CellId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.compiled[id]
	return ok
}

// definitions returns name -> defining CellIds, built from every
// successfully compiled cell's declarations. Must be called with m.mu
// held.
func (m *Manager) definitions() map[string][]types.CellId {
	defs := map[string][]types.CellId{}
	ids := make([]types.CellId, 0, len(m.compiled))
	for id := range m.compiled {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m.order[ids[i]] < m.order[ids[j]] })
	seen := map[string]map[types.CellId]bool{}
	for _, id := range ids {
		for _, d := range m.compiled[id].Declared {
			if seen[d.Name] == nil {
				seen[d.Name] = map[types.CellId]bool{}
			}
			if !seen[d.Name][id] {
				seen[d.Name][id] = true
				defs[d.Name] = append(defs[d.Name], id)
			}
		}
	}
	return defs
}

// edges returns, for every registered cell, the cells whose definitions it
// references: cell_i (definer) -> cell_j (user). Must be called with m.mu
// held.
func (m *Manager) edges(defs map[string][]types.CellId) map[types.CellId][]types.CellId {
	edges := map[types.CellId][]types.CellId{}
	for j, cc := range m.compiled {
		for name := range cc.Referenced {
			for _, i := range defs[name] {
				edges[i] = append(edges[i], j)
			}
		}
	}
	return edges
}

// referrers returns the cells that reference name, sorted in the order
// the manager first saw them. Must be called with m.mu held.
func (m *Manager) referrers(name string) []types.CellId {
	var out []types.CellId
	for id, cc := range m.compiled {
		if cc.References(name) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i]] < m.order[out[j]] })
	return out
}

// Publish derives diagnostics and variables from the current graph state,
// caches them, and clears the stale flag — matching spec.md §5's
// pull-based model ("the next textDocument/diagnostic request ... triggers
// publish, after which stale is cleared").
func (m *Manager) Publish() ([]Diagnostic, []Variable) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.diagValid {
		m.stale = false
		return m.diagCache, m.varCache
	}

	defs := m.definitions()
	ids := make([]types.CellId, 0, len(m.compiled))
	for id := range m.compiled {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m.order[ids[i]] < m.order[ids[j]] })
	edges := m.edges(defs)

	var diags []Diagnostic
	diags = append(diags, m.cycleDiagnostics(ids, edges)...)
	diags = append(diags, m.multipleDefinitionDiagnostics(defs)...)

	vars := make([]Variable, 0, len(defs))
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		vars = append(vars, Variable{
			Name:       name,
			DeclaredBy: defs[name],
			UsedBy:     m.referrers(name),
		})
	}

	m.diagCache = diags
	m.varCache = vars
	m.diagValid = true
	m.stale = false
	return diags, vars
}
