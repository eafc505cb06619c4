package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/veda/internal/logging"
	"github.com/ShayCichocki/veda/internal/mcpbridge"
	"github.com/ShayCichocki/veda/internal/version"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the instance tools over MCP stdio",
	Long: `Run an MCP server on stdin/stdout exposing veda_spawn_instances,
veda_list_instances and veda_close_instance.

Instances launch this automatically through the generated --mcp-config; it
reads VEDA_SESSION_ID and VEDA_TARGET_INSTANCE_ID from the environment.`,
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the MCP protocol; logs go to stderr.
		logging.SetGlobal(logging.NewConsole(zap.WarnLevel))
		defer func() { _ = logging.L().Sync() }()

		b, err := mcpbridge.FromEnv(os.Getenv)
		if err != nil {
			return err
		}
		return b.Serve(version.Get())
	},
}
