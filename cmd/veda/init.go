package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/veda/internal/config"
)

var (
	initForce           bool
	initSkipClaudeCheck bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a project for veda",
	Long: `Prepare a directory for use with veda.

This command:
  - Verifies prerequisites (claude CLI, API key)
  - Creates the .veda directory for logs, the journal and mcp.json
  - Writes a commented .veda.yaml template
  - Adds veda entries to .gitignore

The directory argument is optional and defaults to the current directory.

Examples:
  veda init              # Initialize current directory
  veda init ./myproject  # Initialize specific directory
  veda init --force      # Rewrite the template even if already set up`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().BoolVar(&initSkipClaudeCheck, "skip-claude-check", false, "Skip Claude CLI availability check")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing veda in %s...\n\n", absPath)

	vedaDir := filepath.Join(absPath, ".veda")
	if _, err := os.Stat(vedaDir); err == nil && !initForce {
		fmt.Printf("Directory already initialized. Use --force to reinitialize.\n")
		return nil
	}

	if !initSkipClaudeCheck {
		if err := CheckClaudeCLI(""); err != nil {
			printStatus("✗", "Claude Code CLI not found", color.FgRed)
			return err
		}
		printStatus("✓", "Claude Code CLI found", color.FgGreen)
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		printStatus("⚠", "ANTHROPIC_API_KEY not set (needed for the anthropic analyzer)", color.FgYellow)
	} else {
		printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	}

	if err := os.MkdirAll(filepath.Join(vedaDir, "logs"), 0755); err != nil {
		return fmt.Errorf("creating .veda/logs directory: %w", err)
	}
	printStatus("✓", "Created .veda directory structure", color.FgGreen)

	created, err := createProjectConfig(absPath, initForce)
	if err != nil {
		return fmt.Errorf("creating project config: %w", err)
	}
	if created {
		printStatus("✓", "Created "+config.ProjectFileName+" template", color.FgGreen)
	} else {
		printStatus("✓", config.ProjectFileName+" already exists", color.FgGreen)
	}

	if err := updateGitignore(absPath); err != nil {
		return fmt.Errorf("updating .gitignore: %w", err)
	}
	printStatus("✓", "Updated .gitignore with veda entries", color.FgGreen)

	fmt.Printf("\n%s veda initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	if apiKey == "" {
		fmt.Println("  - Set your API key:")
		fmt.Println("     export ANTHROPIC_API_KEY=your-key-here")
		fmt.Println()
	}
	fmt.Println("  - Start a session:")
	fmt.Println("     veda")
	fmt.Println("     # or: veda run \"your task here\"")
	fmt.Println()
	return nil
}

// gitignoreEntries are the paths veda writes that should not be committed.
var gitignoreEntries = []string{
	".veda/logs/",
	".veda/journal.db*",
	".veda/mcp.json",
}

// updateGitignore adds veda entries to .gitignore if not present.
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	var existing string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existing = string(data)
	}

	var missing []string
	for _, entry := range gitignoreEntries {
		if !strings.Contains(existing, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(existing)
	if len(existing) > 0 && !strings.HasSuffix(existing, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n# veda\n")
	for _, entry := range missing {
		b.WriteString(entry + "\n")
	}
	return os.WriteFile(gitignorePath, []byte(b.String()), 0644)
}

const projectConfigTemplate = `# veda project configuration
# Overrides ~/.config/veda/config.yaml. Changes are applied to running
# sessions.

# analyzer:
#   backend: anthropic   # anthropic | ollama | none
#   model: ""
#   endpoint: http://localhost:11434
#   bedrock: false

# coordination:
#   enabled: true
#   timeout: 3m

# stall:
#   threshold: 5m
#   intervention_timeout: 60s
#   require_user_message: true

# instances:
#   max: 6
#   claude_binary: claude

# ui:
#   auto_mode: true
`

// createProjectConfig writes the .veda.yaml template. An existing file is
// kept unless overwrite is set. It reports whether the file was written.
func createProjectConfig(repoPath string, overwrite bool) (bool, error) {
	path := filepath.Join(repoPath, config.ProjectFileName)
	if _, err := os.Stat(path); err == nil && !overwrite {
		return false, nil
	}
	return true, os.WriteFile(path, []byte(projectConfigTemplate), 0644)
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
