package kernel

// AppMetadata mirrors the original's marimo._runtime.requests.AppMetadata:
// the static facts about the notebook file a kernel is launched for.
type AppMetadata struct {
	Filename    string            `json:"filename"`
	QueryParams map[string]string `json:"query_params"`
	CLIArgs     map[string]string `json:"cli_args"`
	AppConfig   map[string]any    `json:"app_config"`
}

// UserConfig is the subset of the on-disk marimo config relevant to a
// kernel launch (runtime behavior, not editor preferences).
type UserConfig struct {
	AutoInstantiate bool           `json:"auto_instantiate"`
	RuntimeConfig   map[string]any `json:"runtime"`
}

// CellConfig is the per-cell config map carried in from notebook metadata
// (disabled, hide_code, column, ...), keyed by CellId.
type CellConfig map[string]any

// Args is the second of the two JSON lines written to the kernel's stdin,
// matching spec.md §6 "the kernel child reads exactly two JSON lines from
// stdin: ConnectionInfo then KernelArgs".
type Args struct {
	AppMetadata AppMetadata           `json:"app_metadata"`
	Configs     map[string]CellConfig `json:"configs"`
	UserConfig  UserConfig            `json:"user_config"`
	EditMode    bool                  `json:"edit_mode"`
	ProfilePath string                `json:"profile_path,omitempty"`
	LogLevel    string                `json:"log_level"`
}
