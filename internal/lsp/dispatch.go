package lsp

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/marimo-team/marimo-lsp-go/internal/config"
	"github.com/marimo-team/marimo-lsp-go/internal/kernel"
	"github.com/marimo-team/marimo-lsp-go/internal/packagemgr"
	"github.com/marimo-team/marimo-lsp-go/internal/session"
	"github.com/marimo-team/marimo-lsp-go/internal/types"
)

// Execute runs one decoded marimo.api Command against the Registry,
// Graph Managers, and peripheral surfaces, and returns the JSON-able
// result (spec.md §4.G, §6). It is the single entry point the dispatch
// surface calls for the `marimo.api` command.
func (s *Server) Execute(ctx context.Context, cmd Command) (any, error) {
	switch c := cmd.(type) {
	case *RunCommand:
		return s.run(ctx, c)
	case *InterruptCommand:
		return s.interrupt(c)
	case *SetUIElementValueCommand:
		return s.setUIElementValue(c)
	case *FunctionCallRequestCommand:
		return s.functionCallRequest(c)
	case *SerializeCommand:
		return s.serialize(c)
	case *DeserializeCommand:
		return s.deserialize(c)
	case *GetPackageListCommand:
		return s.getPackageList(ctx, c)
	case *GetDependencyTreeCommand:
		return s.getDependencyTree(ctx, c)
	case *GetConfigurationCommand:
		return s.getConfiguration(), nil
	case *UpdateConfigurationCommand:
		return s.updateConfiguration(c)
	case *DapCommand:
		return s.dap.handle(c)
	default:
		return nil, fmt.Errorf("lsp: unhandled command %T", cmd)
	}
}

// ensureSession implements spec.md §4.E's get-or-create policy: reuse an
// existing session unless the requested interpreter differs, in which
// case close and recreate (§4.B "replacing the interpreter requires
// closing the existing session and creating a new one").
func (s *Server) ensureSession(ctx context.Context, notebookURI types.NotebookId, executable string) (*session.Session, error) {
	ns, ok := s.ws.get(notebookURI)
	if !ok {
		return nil, fmt.Errorf("lsp: no open notebook %s", notebookURI)
	}

	if sess, ok := s.registry.Get(notebookURI); ok {
		if sess.Interpreter == executable {
			return sess, nil
		}
		s.dap.Unregister(sess.InitializationID)
	}

	s.cfgMu.Lock()
	cfg := s.cfg
	s.cfgMu.Unlock()

	filename := ns.path
	if filename == "" {
		filename = untitledTag() + ".py"
	}

	view := ns.view()
	configs := make(map[string]kernel.CellConfig, len(view.Cells))
	for _, cell := range view.Cells {
		configs[string(cell.ID)] = cell.Config
	}

	args := kernel.Args{
		AppMetadata: kernel.AppMetadata{Filename: filename, QueryParams: map[string]string{}, CLIArgs: map[string]string{}, AppConfig: map[string]any{}},
		Configs:     configs,
		UserConfig:  kernel.UserConfig{AutoInstantiate: cfg.AutoInstantiate, RuntimeConfig: cfg.Runtime},
		EditMode:    true,
		LogLevel:    cfg.LogLevel,
	}

	sess, err := s.registry.Create(ctx, notebookURI, executable, view, args, s.consumer)
	if err != nil {
		return nil, fmt.Errorf("lsp: create session for %s: %w", notebookURI, err)
	}
	s.dap.Register(sess.InitializationID, func(n DapNotification) {
		if err := s.out.WriteNotification("marimo/dap", n); err != nil {
			s.log.Warn("lsp: write marimo/dap", "error", err)
		}
	})
	s.log.Info("lsp: created session", "notebook", notebookURI, "executable", executable)
	return sess, nil
}

// run implements the `run` method: get-or-create the session, lazily
// instantiate it on first use, then enqueue execution (original_source's
// api.py `run`, spec.md §4.D's instantiate()).
func (s *Server) run(ctx context.Context, c *RunCommand) (any, error) {
	sess, err := s.ensureSession(ctx, c.NotebookURI, c.Executable)
	if err != nil {
		return nil, err
	}
	if err := s.registry.Instantiate(c.NotebookURI); err != nil {
		return nil, fmt.Errorf("lsp: instantiate %s: %w", c.NotebookURI, err)
	}
	if err := sess.PutControl(session.RunRequest(c.CellIDs, c.Codes)); err != nil {
		return nil, fmt.Errorf("lsp: run %s: %w", c.NotebookURI, err)
	}
	return map[string]any{"success": true}, nil
}

func (s *Server) interrupt(c *InterruptCommand) (any, error) {
	sess, ok := s.registry.Get(c.NotebookURI)
	if !ok {
		s.log.Warn("lsp: interrupt: no session", "notebook", c.NotebookURI)
		return map[string]any{"success": false}, nil
	}
	if err := sess.TryInterrupt(); err != nil {
		return nil, fmt.Errorf("lsp: interrupt %s: %w", c.NotebookURI, err)
	}
	return map[string]any{"success": true}, nil
}

func (s *Server) setUIElementValue(c *SetUIElementValueCommand) (any, error) {
	sess, ok := s.registry.Get(c.NotebookURI)
	if !ok {
		return nil, fmt.Errorf("lsp: set_ui_element_value: no session for %s", c.NotebookURI)
	}
	if err := sess.PutSetUIElement(c.ObjectID, c.Value, c.Token); err != nil {
		return nil, fmt.Errorf("lsp: set_ui_element_value %s: %w", c.NotebookURI, err)
	}
	return map[string]any{"success": true}, nil
}

func (s *Server) functionCallRequest(c *FunctionCallRequestCommand) (any, error) {
	sess, ok := s.registry.Get(c.NotebookURI)
	if !ok {
		return nil, fmt.Errorf("lsp: function_call_request: no session for %s", c.NotebookURI)
	}
	req := session.FunctionCallRequest(c.FunctionCallID, c.Namespace, c.FunctionName, c.Args)
	if err := sess.PutControl(req); err != nil {
		return nil, fmt.Errorf("lsp: function_call_request %s: %w", c.NotebookURI, err)
	}
	return map[string]any{"success": true}, nil
}

func (s *Server) getPackageList(ctx context.Context, c *GetPackageListCommand) (any, error) {
	if _, ok := s.registry.Get(c.NotebookURI); !ok {
		s.log.Warn("lsp: get_package_list: no session", "notebook", c.NotebookURI)
		return map[string]any{"packages": []packagemgr.Package{}}, nil
	}
	mgr := s.packageShell(c.Executable)
	pkgs, err := mgr.GetPackageList(ctx)
	if err != nil {
		s.log.Warn("lsp: get_package_list failed", "notebook", c.NotebookURI, "error", err)
		return map[string]any{"packages": []packagemgr.Package{}}, nil
	}
	return map[string]any{"packages": pkgs}, nil
}

func (s *Server) getDependencyTree(ctx context.Context, c *GetDependencyTreeCommand) (any, error) {
	if _, ok := s.registry.Get(c.NotebookURI); !ok {
		s.log.Warn("lsp: get_dependency_tree: no session", "notebook", c.NotebookURI)
		return map[string]any{"tree": nil}, nil
	}
	mgr := s.packageShell(c.Executable)
	tree, err := mgr.GetDependencyTree(ctx, c.Root)
	if err != nil {
		s.log.Warn("lsp: get_dependency_tree failed", "notebook", c.NotebookURI, "error", err)
		return map[string]any{"tree": nil}, nil
	}
	return map[string]any{"tree": tree}, nil
}

// packageShell builds a package-manager shell rooted at the executable's
// directory, honoring the configured manager (uv vs. pip).
func (s *Server) packageShell(executable string) *packagemgr.Shell {
	s.cfgMu.Lock()
	manager := packagemgr.Manager(s.cfg.PackageManager)
	s.cfgMu.Unlock()
	if manager == "" {
		manager = packagemgr.ManagerUV
	}
	return packagemgr.New(manager, filepath.Dir(executable))
}

func (s *Server) getConfiguration() any {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return map[string]any{"config": s.cfg}
}

func (s *Server) updateConfiguration(c *UpdateConfigurationCommand) (any, error) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	if v, ok := c.Config["default_interpreter"].(string); ok {
		s.cfg.DefaultInterpreter = v
	}
	if v, ok := c.Config["log_level"].(string); ok {
		s.cfg.LogLevel = v
	}
	if v, ok := c.Config["auto_instantiate"].(bool); ok {
		s.cfg.AutoInstantiate = v
	}
	if v, ok := c.Config["auto_publish_on_save"].(bool); ok {
		s.cfg.AutoPublishOnSave = v
	}
	if v, ok := c.Config["package_manager"].(string); ok {
		s.cfg.PackageManager = v
	}
	if v, ok := c.Config["runtime"].(map[string]any); ok {
		s.cfg.Runtime = v
	}

	if err := config.Save(s.cfgPath, s.cfg); err != nil {
		return map[string]any{"success": false, "error": err.Error()}, nil
	}

	for _, sess := range s.registry.All() {
		if err := sess.PutControl(session.ConfigUpdateRequest(s.cfg.Runtime)); err != nil {
			s.log.Warn("lsp: push config update", "notebook", sess.NotebookID, "error", err)
		}
	}

	return map[string]any{"success": true, "config": s.cfg}, nil
}
