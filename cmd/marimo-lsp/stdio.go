package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/marimo-team/marimo-lsp-go/internal/config"
	"github.com/marimo-team/marimo-lsp-go/internal/lsp"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Start the language server on stdin/stdout",
	Long:  `Start the LSP server that editors (VS Code, Neovim, ...) launch as a child process to speak the notebook protocol over stdin/stdout.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		logLevel := new(slog.LevelVar)
		if v, _ := cmd.Flags().GetBool("verbose"); v {
			logLevel.Set(slog.LevelDebug)
		}
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

		dir, err := config.DefaultDir()
		if err != nil {
			return fmt.Errorf("resolve config directory: %w", err)
		}
		lockMgr := config.NewLockManager(dir)
		ledger := config.NewPIDLedger(dir, lockMgr)

		out := lsp.NewWriter(os.Stdout)
		srv, err := lsp.NewServer(ctx, log, out, config.Path(dir), ledger)
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		defer srv.Shutdown(ctx)

		log.Info("marimo-lsp: listening on stdio")
		return srv.Serve(ctx, lsp.NewReader(os.Stdin))
	},
}

func init() {
	stdioCmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(stdioCmd)
}
