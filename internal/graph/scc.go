package graph

import "github.com/marimo-team/marimo-lsp-go/internal/types"

// tarjanSCC returns the strongly connected components of the graph
// described by edges (adjacency list, definer -> user), in the order
// their roots complete (a component comes after every component reachable
// from it), each component listing its members in the order Tarjan's
// algorithm pops them off its stack.
func tarjanSCC(nodes []types.CellId, edges map[types.CellId][]types.CellId) [][]types.CellId {
	index := 0
	indices := map[types.CellId]int{}
	lowlink := map[types.CellId]int{}
	onStack := map[types.CellId]bool{}
	var stack []types.CellId
	var result [][]types.CellId

	var strongconnect func(v types.CellId)
	strongconnect = func(v types.CellId) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges[v] {
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var comp []types.CellId
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			result = append(result, comp)
		}
	}

	for _, v := range nodes {
		if _, seen := indices[v]; !seen {
			strongconnect(v)
		}
	}
	return result
}

// cycles filters SCCs down to ones that are actual cycles: size >= 2, or a
// single node with a self-loop.
func cycles(nodes []types.CellId, edges map[types.CellId][]types.CellId) [][]types.CellId {
	var out [][]types.CellId
	for _, comp := range tarjanSCC(nodes, edges) {
		if len(comp) >= 2 {
			out = append(out, comp)
			continue
		}
		if len(comp) == 1 {
			v := comp[0]
			for _, w := range edges[v] {
				if w == v {
					out = append(out, comp)
					break
				}
			}
		}
	}
	return out
}
