package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/ShayCichocki/veda/internal/agent"
	"github.com/ShayCichocki/veda/internal/analyzer"
	"github.com/ShayCichocki/veda/internal/config"
	"github.com/ShayCichocki/veda/internal/coordination"
	"github.com/ShayCichocki/veda/internal/ipc"
	"github.com/ShayCichocki/veda/internal/journal"
	"github.com/ShayCichocki/veda/internal/logging"
	"github.com/ShayCichocki/veda/internal/orchestrator"
)

// sessionOptions carries command-line overrides for one session.
type sessionOptions struct {
	prompt   string
	headless bool
	noAuto   bool
}

// runSession wires config, logging, journal, analyzer, orchestrator and the
// IPC socket, then runs the TUI or the headless console until exit.
func runSession(ctx context.Context, opts sessionOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := CheckClaudeCLI(cfg.Instances.ClaudeBinary); err != nil {
		return err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	logPath := cfg.Log.Path
	if logPath == "" {
		logPath = logging.ProjectPath(workDir)
	}
	log, err := logging.New(logPath, logging.ParseLevel(cfg.Log.Level))
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = log.Sync() }()
	logging.SetGlobal(log)

	settings := settingsFromConfig(cfg)
	if opts.noAuto {
		settings.AutoMode = false
	}

	process := agent.StartOptions{
		Binary:    cfg.Instances.ClaudeBinary,
		Model:     cfg.Instances.Model,
		MCPConfig: cfg.Instances.MCPConfig,
	}
	if process.MCPConfig == "" {
		path, err := writeMCPConfig(workDir)
		if err != nil {
			log.Warn("could not write MCP config, instance tools unavailable", zap.Error(err))
		} else {
			process.MCPConfig = path
		}
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithSettings(settings),
		orchestrator.WithPollInterval(cfg.Instances.PollInterval),
		orchestrator.WithInitialPrompt(opts.prompt),
		orchestrator.WithProcess(process),
	}

	an, err := buildAnalyzer(cfg)
	switch {
	case err != nil:
		log.Warn("analyzer unavailable", zap.Error(err))
		printStatus("⚠", fmt.Sprintf("Analyzer unavailable: %v (coordination limited to explicit requests)", err), color.FgYellow)
	case an != nil:
		orchOpts = append(orchOpts, orchestrator.WithAnalyzer(an))
	}

	var db *journal.DB
	if cfg.Journal.Enabled {
		path := cfg.Journal.Path
		if path == "" {
			path = journal.ProjectPath(workDir)
		}
		db, err = journal.Open(path)
		if err != nil {
			log.Warn("journal unavailable", zap.String("path", path), zap.Error(err))
			db = nil
		} else {
			defer db.Close()
			orchOpts = append(orchOpts, orchestrator.WithJournal(db))
		}
	}

	orch := orchestrator.New(orchestrator.RequiredConfig{
		WorkDir: workDir,
		Factory: agent.NewFactory(log),
	}, orchOpts...)

	if db != nil {
		if err := db.StartSession(orch.SessionID(), workDir, time.Now()); err != nil {
			log.Warn("journal session start failed", zap.Error(err))
		}
		defer func() {
			if err := db.EndSession(orch.SessionID(), time.Now()); err != nil {
				log.Warn("journal session end failed", zap.Error(err))
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := ipc.NewServer(ipc.SocketPath(orch.SessionID()), orch, log)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}
	defer srv.Close()

	watched, err := config.Watch(func(c *config.Config, err error) {
		if err != nil {
			log.Warn("config reload failed", zap.Error(err))
			return
		}
		orch.UpdateSettings(settingsFromConfig(c))
	})
	if err != nil {
		log.Warn("config watch failed", zap.Error(err))
	}
	log.Info("session starting",
		zap.String("session", orch.SessionID()),
		zap.String("socket", srv.Path()),
		zap.Strings("watched_configs", watched))

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(ctx) }()

	if opts.headless {
		err = runHeadless(ctx, orch, os.Stdin, os.Stdout)
	} else {
		err = runTUI(ctx, orch, cfg.UI.RefreshRate)
	}
	cancel()
	if rerr := <-runErr; rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// settingsFromConfig maps config sections onto orchestrator tunables.
func settingsFromConfig(cfg *config.Config) orchestrator.Settings {
	return orchestrator.Settings{
		MaxInstances:        cfg.Instances.Max,
		CoordinationEnabled: cfg.Coordination.Enabled,
		CoordinationTimeout: cfg.Coordination.Timeout,
		StallThreshold:      cfg.Stall.Threshold,
		InterventionTimeout: cfg.Stall.InterventionTimeout,
		RequireUserMessage:  cfg.Stall.RequireUserMessage,
		AutoMode:            cfg.UI.AutoMode,
	}
}

// buildAnalyzer returns nil without error when the analyzer is disabled.
func buildAnalyzer(cfg *config.Config) (coordination.Analyzer, error) {
	var apiKey string
	if needsAPIKey(cfg) {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, err
		}
		apiKey = key
	}

	a, err := analyzer.New(analyzer.Config{
		Backend:       analyzer.Backend(cfg.Analyzer.Backend),
		Model:         cfg.Analyzer.Model,
		Endpoint:      cfg.Analyzer.Endpoint,
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Analyzer.Bedrock,
		AWSRegion:     cfg.Analyzer.AWSRegion,
		AWSProfile:    cfg.Analyzer.AWSProfile,
		MaxTokens:     int64(cfg.Analyzer.MaxTokens),
	})
	if errors.Is(err, analyzer.ErrDisabled) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// needsAPIKey reports whether the configured analyzer calls the Anthropic API
// directly.
func needsAPIKey(cfg *config.Config) bool {
	switch analyzer.Backend(strings.ToLower(cfg.Analyzer.Backend)) {
	case analyzer.BackendAnthropic, "":
		return !cfg.Analyzer.Bedrock
	default:
		return false
	}
}

// mcpServers is the --mcp-config document pointing instances at "veda mcp".
type mcpServers struct {
	MCPServers map[string]mcpServer `json:"mcpServers"`
}

type mcpServer struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// writeMCPConfig writes .veda/mcp.json registering this binary as the MCP
// server for instance tools.
func writeMCPConfig(workDir string) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(mcpServers{MCPServers: map[string]mcpServer{
		"veda": {Command: exe, Args: []string{"mcp"}},
	}}, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(workDir, ".veda", "mcp.json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
