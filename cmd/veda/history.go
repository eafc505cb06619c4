package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/veda/internal/config"
	"github.com/ShayCichocki/veda/internal/journal"
)

var (
	historySession  string
	historyKinds    []string
	historyLimit    int
	historySessions bool
	historyPurge    time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the session journal",
	Long: `Show spawns, closes, coordination decisions, stall interventions and IPC
commands recorded by previous sessions in this project.

Examples:
  veda history                       # Most recent entries
  veda history --sessions            # List sessions
  veda history --session a1b2c3d4    # One session
  veda history --kind coordination   # One kind of entry
  veda history --purge 720h          # Delete sessions older than 30 days`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historySession, "session", "", "Restrict to one session id")
	historyCmd.Flags().StringSliceVar(&historyKinds, "kind", nil, "Restrict to entry kinds")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Maximum entries to show")
	historyCmd.Flags().BoolVar(&historySessions, "sessions", false, "List sessions instead of entries")
	historyCmd.Flags().DurationVar(&historyPurge, "purge", 0, "Delete sessions older than this")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	path := cfg.Journal.Path
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		path = journal.ProjectPath(wd)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No journal found. Run a session first.")
		return nil
	}

	db, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	switch {
	case historyPurge > 0:
		n, err := db.Purge(historyPurge)
		if err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("Purged %d session(s) older than %s", n, historyPurge), color.FgGreen)
		return nil
	case historySessions:
		return printSessions(db)
	}

	kinds := make([]journal.Kind, 0, len(historyKinds))
	for _, k := range historyKinds {
		kinds = append(kinds, journal.Kind(strings.TrimSpace(k)))
	}
	entries, err := db.Recent(journal.Filter{
		SessionID: historySession,
		Kinds:     kinds,
		Limit:     historyLimit,
	})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No entries.")
		return nil
	}

	dim := color.New(color.Faint)
	for _, e := range entries {
		name := e.InstanceName
		if name == "" {
			name = "-"
		}
		fmt.Printf("%s %s %s %-8s %s\n",
			dim.Sprint(e.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			dim.Sprint(e.SessionID),
			kindColor(e.Kind).Sprintf("%-18s", e.Kind),
			name,
			e.Detail,
		)
	}
	return nil
}

func printSessions(db *journal.DB) error {
	sessions, err := db.Sessions(historyLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	for _, s := range sessions {
		status := color.YellowString("running")
		if s.EndedAt != nil {
			status = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Printf("%s  %s  %-10s %s\n",
			color.CyanString(s.ID),
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			status,
			s.WorkDir,
		)
	}
	return nil
}

func kindColor(k journal.Kind) *color.Color {
	switch k {
	case journal.KindSpawnFailed:
		return color.New(color.FgRed)
	case journal.KindCoordination:
		return color.New(color.FgMagenta)
	case journal.KindStallIntervention:
		return color.New(color.FgYellow)
	case journal.KindInstanceClosed:
		return color.New(color.Faint)
	default:
		return color.New(color.FgGreen)
	}
}
