package main

import (
	"context"
	"os"
	"os/exec"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultProbeTimeout = 2 * time.Second

func init() {
	if version == "dev" {
		if buildCommit, buildTime := getBuildInfoFromBinary(); buildCommit != "unknown" {
			commit = buildCommit
			date = buildTime
		}
	}

	versionCmd.Flags().BoolP("system", "s", false, "Show interpreter and kernel runtime information")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of the marimo-lsp binary.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		showSystem, _ := cmd.Flags().GetBool("system")

		cmd.Printf("marimo-lsp version %s\n", version)
		if commit != "unknown" {
			cmd.Printf("commit: %s\n", commit)
		}
		if date != "unknown" {
			cmd.Printf("built: %s\n", date)
		}

		if showSystem {
			width := reportWidth()
			cmd.Printf("\n%s\n", strings.Repeat("-", width))
			cmd.Printf("Default interpreter: %s\n", defaultInterpreterLabel())
			for _, candidate := range []string{"python3", "python"} {
				if v := getToolVersion(cmd.Context(), candidate, "--version"); v != "" {
					cmd.Printf("  %s: %s\n", candidate, v)
				} else {
					cmd.Printf("  %s: not found\n", candidate)
				}
			}
			if v := getToolVersion(cmd.Context(), "uv", "--version"); v != "" {
				cmd.Printf("Package manager (uv): %s\n", v)
			} else {
				cmd.Printf("Package manager (uv): not found\n")
			}
		}

		return nil
	},
}

// reportWidth sizes the --system report's divider to the attached
// terminal, falling back to 80 columns when stdout isn't one (a
// redirected pipe, a CI log) — golang.org/x/term, carried over from the
// teacher's go.mod per SPEC_FULL.md DOMAIN STACK.
func reportWidth() int {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return 80
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func defaultInterpreterLabel() string {
	if path, err := exec.LookPath("python3"); err == nil {
		return path
	}
	return "unresolved"
}

var versionRegex = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?)`)

func extractVersion(output string) string {
	if matches := versionRegex.FindStringSubmatch(output); len(matches) > 1 {
		return matches[1]
	}
	return "unknown"
}

func getToolVersion(ctx context.Context, tool string, args ...string) string {
	if _, err := exec.LookPath(tool); err != nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, tool, args...).CombinedOutput()
	if err != nil {
		return ""
	}
	output := strings.TrimSpace(string(out))
	if v := extractVersion(output); v != "unknown" {
		return v
	}
	return output
}

func getBuildInfoFromBinary() (string, string) {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown", "unknown"
	}

	var revision, buildTime, modified string
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			buildTime = setting.Value
		case "vcs.modified":
			modified = setting.Value
		}
	}

	if len(revision) > 7 {
		revision = revision[:7]
	}
	if modified == "true" {
		revision += "-dirty"
	}
	if revision == "" {
		revision = "unknown"
	}
	if buildTime == "" {
		buildTime = "unknown"
	}

	return revision, buildTime
}
