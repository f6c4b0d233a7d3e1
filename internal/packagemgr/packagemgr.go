// Package packagemgr shells out to the configured Python package manager
// to answer get_package_list/get_dependency_tree API queries, one of the
// SPEC_FULL.md "Supplemented features" dropped from spec.md's
// distillation (original_source's package_manager.py). Kept at the same
// "external collaborator" depth as the spec's other peripheral surfaces:
// it is invoked only from the dispatch surface (internal/lsp), never from
// the core.
package packagemgr

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dustin/go-humanize"
)

// Manager name identifies which package manager's CLI conventions to use.
type Manager string

const (
	ManagerUV  Manager = "uv"
	ManagerPip Manager = "pip"
)

// Package is one installed package entry.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DependencyNode is one entry of a dependency tree, with a
// human-readable size field (github.com/dustin/go-humanize, carried
// over from the teacher's go.mod per SPEC_FULL.md DOMAIN STACK).
// SizeBytes is never filled in, so it is always 0 and SizeHuman always
// reads "0 B".
type DependencyNode struct {
	Name         string           `json:"name"`
	Version      string           `json:"version"`
	SizeBytes    int64            `json:"size_bytes"`
	SizeHuman    string           `json:"size_human"`
	Dependencies []DependencyNode `json:"dependencies,omitempty"`
}

// Shell runs the configured package manager's CLI and parses its output.
// cwd is the project directory (the notebook's containing directory) the
// package manager should be invoked from, so it resolves the right
// virtual environment / lockfile.
type Shell struct {
	Manager Manager
	cwd     string
	run     func(ctx context.Context, cwd, name string, args ...string) ([]byte, error)
}

// New constructs a Shell for manager, rooted at cwd.
func New(manager Manager, cwd string) *Shell {
	return &Shell{Manager: manager, cwd: cwd, run: runCommand}
}

func runCommand(ctx context.Context, cwd, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = cwd
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// GetPackageList lists installed packages, matching the original's
// get_package_list API method.
func (s *Shell) GetPackageList(ctx context.Context) ([]Package, error) {
	var out []byte
	var err error
	switch s.Manager {
	case ManagerUV:
		out, err = s.run(ctx, s.cwd, "uv", "pip", "list", "--format", "json")
	default:
		out, err = s.run(ctx, s.cwd, "pip", "list", "--format", "json")
	}
	if err != nil {
		return nil, err
	}
	var pkgs []Package
	if err := json.Unmarshal(out, &pkgs); err != nil {
		return nil, fmt.Errorf("parse package list: %w", err)
	}
	return pkgs, nil
}

// GetDependencyTree returns the installed dependency tree, matching the
// original's get_dependency_tree API method. No installed size is
// computed: SizeBytes stays 0 and SizeHuman is go-humanize's rendering
// of 0.
func (s *Shell) GetDependencyTree(ctx context.Context, root string) (*DependencyNode, error) {
	var out []byte
	var err error
	switch s.Manager {
	case ManagerUV:
		out, err = s.run(ctx, s.cwd, "uv", "pip", "show", root)
	default:
		out, err = s.run(ctx, s.cwd, "pip", "show", root)
	}
	if err != nil {
		return nil, err
	}
	node := &DependencyNode{Name: root}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	var requires []string
	for scanner.Scan() {
		line := scanner.Text()
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch key {
		case "Version":
			node.Version = val
		case "Requires":
			if val != "" {
				for _, r := range strings.Split(val, ",") {
					if r = strings.TrimSpace(r); r != "" {
						requires = append(requires, r)
					}
				}
			}
		}
	}
	node.SizeHuman = humanize.Bytes(uint64(node.SizeBytes))
	for _, dep := range requires {
		child, err := s.GetDependencyTree(ctx, dep)
		if err != nil {
			continue
		}
		node.Dependencies = append(node.Dependencies, *child)
	}
	return node, nil
}
