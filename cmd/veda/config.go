package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/veda/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
	Long: `Inspect veda configuration.

Configuration is read from ~/.config/veda/config.yaml with project-specific
overrides in .veda.yaml and VEDA_<SECTION>_<KEY> environment variables.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		fmt.Println(apiKeyStatus(cfg))
		return nil
	},
}

// apiKeyStatus describes the analyzer API key and where it came from.
func apiKeyStatus(cfg *config.Config) string {
	key, _ := config.GetAPIKey(cfg)
	return fmt.Sprintf("# api key: %s (source: %s)", config.MaskAPIKey(key), config.GetAPIKeySource(cfg))
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file locations",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("user:    %s\n", config.GetUserConfigPath())
		project := config.GetProjectConfigPath()
		if project == "" {
			project = "(none)"
		}
		fmt.Printf("project: %s\n", project)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd)
}
