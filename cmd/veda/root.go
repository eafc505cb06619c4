package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

var (
	rootPrompt string
	rootNoAuto bool
)

// CheckClaudeCLI verifies that the Claude CLI is available in PATH.
// Returns an error with installation instructions if not found.
func CheckClaudeCLI(binary string) error {
	if binary == "" {
		binary = "claude"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("%s CLI not found in PATH\n\n"+
			"Veda requires the Claude Code CLI to run instances.\n\n"+
			"Install it with:\n"+
			"  npm install -g @anthropic-ai/claude-code\n\n"+
			"For more information, visit:\n"+
			"  https://docs.anthropic.com/en/docs/claude-code", binary)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "veda",
	Short: "Multi-instance Claude Code orchestrator",
	Long: `Veda runs several Claude Code instances side by side in one terminal.

With no arguments, launches the TUI with a single main instance. Instances
can split work between themselves: a secondary model decides when a task
benefits from parallel instances and breaks it into scoped subtasks, and
quiet conversations are nudged forward automatically.

Instances control their siblings through the veda_* MCP tools, which talk
to the running session over a local socket.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context(), sessionOptions{
			prompt: rootPrompt,
			noAuto: rootNoAuto,
		})
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&rootPrompt, "prompt", "p", "", "Initial prompt for the main instance")
	rootCmd.Flags().BoolVar(&rootNoAuto, "no-auto", false, "Start with auto mode disabled")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(ipcCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
