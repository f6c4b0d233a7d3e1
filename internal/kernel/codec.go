package kernel

import (
	"context"
	"encoding/json"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/marimo-team/marimo-lsp-go/internal/ipc"
)

func encodeArgs(args Args) ([]byte, error) {
	return json.Marshal(args)
}

// DumpLaunch renders the connection info and kernel args as YAML for
// human-diffable debug logging, alongside the JSON wire form actually sent
// to the child.
func DumpLaunch(log *slog.Logger, info ipc.ConnectionInfo, args Args) {
	if !log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	out, err := yaml.Marshal(struct {
		ConnectionInfo ipc.ConnectionInfo `yaml:"connection_info"`
		Args           Args               `yaml:"args"`
	}{info, args})
	if err != nil {
		log.Debug("kernel launch dump failed", "error", err)
		return
	}
	log.Debug("kernel launch", "dump", string(out))
}
