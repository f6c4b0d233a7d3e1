package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "marimo-lsp",
	Short: "Language server fronting the marimo reactive notebook runtime",
	Long: `marimo-lsp binds each open notebook to a long-lived kernel subprocess and
speaks LSP notebook-document synchronization plus a small set of custom
marimo/* methods to drive it: cell execution, UI element updates,
interrupts, package queries, and debug-adapter forwarding.`,
	SilenceUsage: true,
}
