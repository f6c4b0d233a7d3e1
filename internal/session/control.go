package session

import (
	"github.com/marimo-team/marimo-lsp-go/internal/kernel"
	"github.com/marimo-team/marimo-lsp-go/internal/types"
)

// ControlRequest is one command pushed onto the kernel's control channel.
// Op is a closed set of kernel-protocol command names; Payload carries
// the op-specific body. This keeps the wire shape simple (the kernel
// protocol itself is an external contract, spec.md §1) while the
// API-facing dispatch in internal/lsp uses a proper tagged union per the
// REDESIGN FLAGS guidance ("replace the stringly dispatcher ... closed
// set of command variants").
type ControlRequest struct {
	Op      string         `json:"op"`
	Payload map[string]any `json:"payload,omitempty"`
}

const (
	opCreate       = "create"
	opRun          = "run"
	opFunctionCall = "function-call"
	opConfigUpdate = "config-update"
)

// RunRequest enqueues execution of the given cells.
func RunRequest(cellIDs []types.CellId, codes map[types.CellId]string) ControlRequest {
	return ControlRequest{Op: opRun, Payload: map[string]any{
		"cell_ids": cellIDs,
		"codes":    codes,
	}}
}

// FunctionCallRequest enqueues a remote function invocation (e.g. a UI
// element's on_change handler implemented server-side in the kernel).
func FunctionCallRequest(functionCallID, namespace, functionName string, args map[string]any) ControlRequest {
	return ControlRequest{Op: opFunctionCall, Payload: map[string]any{
		"function_call_id": functionCallID,
		"namespace":        namespace,
		"function_name":    functionName,
		"args":             args,
	}}
}

// ConfigUpdateRequest enqueues a runtime configuration change.
func ConfigUpdateRequest(config map[string]any) ControlRequest {
	return ControlRequest{Op: opConfigUpdate, Payload: map[string]any{"config": config}}
}

// createRequest synthesises the "create notebook" control command from a
// View's current cells, per spec.md §4.D's instantiate().
func createRequest(view *View) ControlRequest {
	cellIDs := make([]types.CellId, len(view.Cells))
	codes := make(map[types.CellId]string, len(view.Cells))
	names := make(map[types.CellId]string, len(view.Cells))
	configs := make(map[types.CellId]kernel.CellConfig, len(view.Cells))
	for i, c := range view.Cells {
		cellIDs[i] = c.ID
		codes[c.ID] = c.Text
		names[c.ID] = c.Name
		configs[c.ID] = c.Config
	}
	return ControlRequest{Op: opCreate, Payload: map[string]any{
		"cell_ids": cellIDs,
		"codes":    codes,
		"names":    names,
		"configs":  configs,
	}}
}
