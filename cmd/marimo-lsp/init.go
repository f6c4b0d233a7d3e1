package main

import (
	"fmt"
	"os/exec"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/marimo-team/marimo-lsp-go/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively create the on-disk marimo-lsp configuration",
	Long:  `Walk through picking a default Python interpreter, log level, and auto-publish behavior, then write config.toml.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.DefaultUserConfig()
		if resolved, err := exec.LookPath("python3"); err == nil {
			cfg.DefaultInterpreter = resolved
		}

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Default Python interpreter").
					Description("Used when the editor doesn't pin one explicitly").
					Value(&cfg.DefaultInterpreter),
				huh.NewSelect[string]().
					Title("Default log level").
					Options(
						huh.NewOption("DEBUG", "DEBUG"),
						huh.NewOption("INFO", "INFO"),
						huh.NewOption("WARNING", "WARNING"),
						huh.NewOption("ERROR", "ERROR"),
					).
					Value(&cfg.LogLevel),
				huh.NewSelect[string]().
					Title("Package manager").
					Options(
						huh.NewOption("uv", "uv"),
						huh.NewOption("pip", "pip"),
					).
					Value(&cfg.PackageManager),
				huh.NewConfirm().
					Title("Publish diagnostics automatically on save?").
					Value(&cfg.AutoPublishOnSave),
				huh.NewConfirm().
					Title("Auto-instantiate notebooks on open?").
					Value(&cfg.AutoInstantiate),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("run setup wizard: %w", err)
		}

		dir, err := config.DefaultDir()
		if err != nil {
			return fmt.Errorf("resolve config directory: %w", err)
		}
		path := config.Path(dir)
		if err := config.Save(path, cfg); err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		style := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
		cmd.Println(style.Render("Wrote " + path))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
