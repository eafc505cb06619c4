package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var (
	runHeadlessFlag bool
	runNoAuto       bool
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Start a session, optionally with an initial prompt",
	Long: `Start a veda session with the given prompt sent to the main instance.

With --headless, no TUI is shown: events are printed to stdout and each line
read from stdin is sent to the focused instance. Lines starting with "!cd "
change the instance's working directory.

Examples:
  veda run "add integration tests for the API"
  veda run --headless "refactor the config loader"
  echo "split this task across instances" | veda run --headless`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context(), sessionOptions{
			prompt:   strings.Join(args, " "),
			headless: runHeadlessFlag,
			noAuto:   runNoAuto,
		})
	},
}

func init() {
	runCmd.Flags().BoolVar(&runHeadlessFlag, "headless", false, "Run without the TUI")
	runCmd.Flags().BoolVar(&runNoAuto, "no-auto", false, "Start with auto mode disabled")
}
