package lsp

import (
	"encoding/json"
	"fmt"

	"github.com/marimo-team/marimo-lsp-go/internal/types"
)

// Command is the closed set of marimo.api command variants, replacing the
// original's stringly method-name dispatcher (REDESIGN FLAGS: "replace
// the stringly dispatcher with a closed set of command variants and a
// tagged dispatch"). DecodeCommand is a total match over every method
// name the dispatch surface understands; an unknown name is a typed
// error, never a silent no-op.
type Command interface {
	apiMethod() string
}

// Session-scoped methods all carry NotebookURI (+ Executable, so the
// caller-side interpreter-change detection of spec.md §4.E has something
// to compare).
type sessionScoped struct {
	NotebookURI types.NotebookId `json:"notebookUri"`
	Executable  string           `json:"executable"`
}

type RunCommand struct {
	sessionScoped
	CellIDs []types.CellId          `json:"cellIds"`
	Codes   map[types.CellId]string `json:"codes"`
}

func (RunCommand) apiMethod() string { return "run" }

type InterruptCommand struct{ sessionScoped }

func (InterruptCommand) apiMethod() string { return "interrupt" }

type SetUIElementValueCommand struct {
	sessionScoped
	ObjectID string `json:"objectId"`
	Value    any    `json:"value"`
	Token    string `json:"token"`
}

func (SetUIElementValueCommand) apiMethod() string { return "set_ui_element_value" }

type FunctionCallRequestCommand struct {
	sessionScoped
	FunctionCallID string         `json:"functionCallId"`
	Namespace      string         `json:"namespace"`
	FunctionName   string         `json:"functionName"`
	Args           map[string]any `json:"args"`
}

func (FunctionCallRequestCommand) apiMethod() string { return "function_call_request" }

type SerializeCommand struct {
	sessionScoped
	Cells []SerializeCell `json:"cells"`
}

type SerializeCell struct {
	ID   types.CellId `json:"id"`
	Name string       `json:"name"`
	Code string       `json:"code"`
}

func (SerializeCommand) apiMethod() string { return "serialize" }

type DeserializeCommand struct {
	Source string `json:"source"`
}

func (DeserializeCommand) apiMethod() string { return "deserialize" }

type GetPackageListCommand struct{ sessionScoped }

func (GetPackageListCommand) apiMethod() string { return "get_package_list" }

type GetDependencyTreeCommand struct {
	sessionScoped
	Root string `json:"root"`
}

func (GetDependencyTreeCommand) apiMethod() string { return "get_dependency_tree" }

type GetConfigurationCommand struct{}

func (GetConfigurationCommand) apiMethod() string { return "get_configuration" }

type UpdateConfigurationCommand struct {
	Config map[string]any `json:"config"`
}

func (UpdateConfigurationCommand) apiMethod() string { return "update_configuration" }

type DapCommand struct {
	SessionID string `json:"sessionId"`
	Message   any    `json:"message"`
}

func (DapCommand) apiMethod() string { return "dap" }

// apiRequest is the wire shape of a marimo.api call: {method, params}.
type apiRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// UnknownMethodError is returned by DecodeCommand for a method name
// outside the closed set (spec.md §7: "Unknown API method ... Warn-log
// and raise a typed invalid-request error").
type UnknownMethodError struct{ Method string }

func (e *UnknownMethodError) Error() string { return fmt.Sprintf("unknown marimo.api method %q", e.Method) }

// DecodeCommand parses a marimo.api call's raw params into the method's
// concrete Command type. It is a total match: every case in the spec's
// closed set of method names is handled, and anything else is an
// UnknownMethodError.
func DecodeCommand(raw json.RawMessage) (Command, error) {
	var req apiRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decode marimo.api request: %w", err)
	}

	decode := func(dst Command) (Command, error) {
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, dst); err != nil {
				return nil, fmt.Errorf("decode params for %q: %w", req.Method, err)
			}
		}
		return dst, nil
	}

	switch req.Method {
	case "run":
		return decode(&RunCommand{})
	case "interrupt":
		return decode(&InterruptCommand{})
	case "set_ui_element_value":
		return decode(&SetUIElementValueCommand{})
	case "function_call_request":
		return decode(&FunctionCallRequestCommand{})
	case "serialize":
		return decode(&SerializeCommand{})
	case "deserialize":
		return decode(&DeserializeCommand{})
	case "get_package_list":
		return decode(&GetPackageListCommand{})
	case "get_dependency_tree":
		return decode(&GetDependencyTreeCommand{})
	case "get_configuration":
		return decode(&GetConfigurationCommand{})
	case "update_configuration":
		return decode(&UpdateConfigurationCommand{})
	case "dap":
		return decode(&DapCommand{})
	default:
		return nil, &UnknownMethodError{Method: req.Method}
	}
}
