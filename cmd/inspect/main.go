package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/arbiter/internal/state"
)

var (
	dbPath  string
	jsonOut bool
	limit   int

	store *state.Store
)

// #region root
var rootCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Read sessions, audit entries and turn provenance from an arbiter database",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if dbPath == "" {
			return fmt.Errorf("--db is required")
		}
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		var err error
		store, err = state.NewStore(dbPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to arbiter.db (required)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output as JSON instead of a table")
	rootCmd.PersistentFlags().IntVarP(&limit, "last", "n", 20, "Show the N most recent rows (0 = all)")

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(turnsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(outcomesCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// #endregion root

// #region sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions with their active version",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

type sessionRow struct {
	ID        string  `json:"id"`
	VersionID string  `json:"version_id"`
	Turn      int     `json:"turn"`
	Voice     string  `json:"voice"`
	Phase     string  `json:"phase"`
	Trust     float64 `json:"trust"`
	Pain      float64 `json:"pain"`
	UpdatedAt string  `json:"updated_at"`
}

func runSessions(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ids, err := store.List(ctx)
	if err != nil {
		return err
	}
	rows := make([]sessionRow, 0, len(ids))
	for _, id := range ids {
		sess, err := store.Load(ctx, id)
		if err != nil {
			return err
		}
		rows = append(rows, sessionRow{
			ID:        sess.ID,
			VersionID: sess.VersionID,
			Turn:      sess.Turn,
			Voice:     string(sess.Voice),
			Phase:     string(sess.Phase),
			Trust:     sess.Metrics.Trust,
			Pain:      sess.Metrics.Pain,
			UpdatedAt: sess.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	if jsonOut {
		return printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "no sessions found")
		return nil
	}
	fmt.Printf("%-20s  %-12s  %5s  %-9s  %-8s  %6s  %6s  %s\n",
		"Session", "Version", "Turn", "Voice", "Phase", "Trust", "Pain", "Updated")
	for _, r := range rows {
		fmt.Printf("%-20s  %-12s  %5d  %-9s  %-8s  %6.2f  %6.2f  %s\n",
			r.ID, shortID(r.VersionID), r.Turn, r.Voice, r.Phase, r.Trust, r.Pain, r.UpdatedAt)
	}
	return nil
}

// #endregion sessions

// #region history
var historyCmd = &cobra.Command{
	Use:   "history <session>",
	Short: "Show the version chain of a session, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	versions, err := store.History(context.Background(), args[0], limit)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return fmt.Errorf("session %s: %w", args[0], state.ErrNotFound)
	}
	// store returns newest first
	for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
		versions[i], versions[j] = versions[j], versions[i]
	}
	if jsonOut {
		return printJSON(versions)
	}

	fmt.Printf("%-12s  %-12s  %5s  %-9s  %-8s  %6s  %6s  %6s  %6s  %s\n",
		"Version", "Parent", "Turn", "Voice", "Phase", "Trust", "Clarity", "Pain", "Chaos", "Time")
	for _, v := range versions {
		parent := "—"
		if v.ParentID != "" {
			parent = shortID(v.ParentID)
		}
		fmt.Printf("%-12s  %-12s  %5d  %-9s  %-8s  %6.2f  %6.2f  %6.2f  %6.2f  %s\n",
			shortID(v.VersionID), parent, v.Turn, v.Voice, v.Phase,
			v.Metrics.Trust, v.Metrics.Clarity, v.Metrics.Pain, v.Metrics.Chaos,
			v.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion history

// #region helpers
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// #endregion helpers
