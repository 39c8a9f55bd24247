package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/arbiter/internal/audit"
	"github.com/danielpatrickdp/arbiter/internal/logging"
	"github.com/danielpatrickdp/arbiter/internal/orchestrator"
	"github.com/danielpatrickdp/arbiter/internal/playbook"
	"github.com/danielpatrickdp/arbiter/internal/replay"
)

var (
	auditType  string
	auditQuery string
	exportOut  string
)

func init() {
	auditCmd.Flags().StringVar(&auditType, "type", "", "Only entries of this type")
	auditCmd.Flags().StringVar(&auditQuery, "query", "", `CEL filter, e.g. 'entry.severity_rank >= 2'`)
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Fixture path (default <session>.json)")
}

// #region turns
var turnsCmd = &cobra.Command{
	Use:   "turns <session>",
	Short: "Show the recorded turns of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runTurns,
}

func runTurns(cmd *cobra.Command, args []string) error {
	recs, err := logging.LoadTurns(context.Background(), store.DB(), args[0])
	if err != nil {
		return err
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	if jsonOut {
		return printJSON(recs)
	}
	if len(recs) == 0 {
		return fmt.Errorf("no turns recorded for %s", args[0])
	}

	fmt.Printf("%-12s  %-9s  %-10s  %-8s  %-8s  %-6s  %5s  %3s  %s\n",
		"Turn", "Voice", "Playbook", "Phase", "Ritual", "Gate", "Grade", "Try", "Prompt")
	for _, r := range recs {
		rit := r.Ritual
		if rit == "" {
			rit = "—"
		} else if r.Invoked {
			rit += "*"
		}
		fmt.Printf("%-12s  %-9s  %-10s  %-8s  %-8s  %-6s  %5s  %3d  %s\n",
			shortID(r.TurnID), r.Voice, r.Playbook, r.Phase, rit, r.GateAction, r.Grade, r.Attempts, clip(r.Prompt, 48))
	}
	return nil
}

// #endregion turns

// #region audit
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show persisted audit entries and a summary",
	Args:  cobra.NoArgs,
	RunE:  runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	sink, err := logging.NewAuditSink(store.DB(), nil)
	if err != nil {
		return err
	}
	entries, err := sink.Recent(context.Background(), audit.Type(auditType), limit)
	if err != nil {
		return err
	}

	// reload into a ring so the in-memory query and report apply
	log := audit.NewLog(audit.LogConfig{Capacity: max(1, len(entries))})
	for _, e := range entries {
		log.Append(e)
	}
	if auditQuery != "" {
		entries, err = log.Query(auditQuery)
		if err != nil {
			return err
		}
	}
	if jsonOut {
		return printJSON(entries)
	}

	for _, e := range entries {
		fmt.Printf("%s  %-8s  %-18s  %-10s  %s\n",
			e.Timestamp.Format("15:04:05.000"), e.Severity, e.Type, e.Actor, details(e.Details))
	}
	if auditQuery == "" {
		fmt.Println()
		fmt.Print(log.Report(audit.Filter{}))
	}
	return nil
}

func details(d map[string]any) string {
	parts := make([]string, 0, len(d))
	for k, v := range d {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return clip(strings.Join(sorted(parts), " "), 96)
}

// #endregion audit

// #region outcomes
var outcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "Show generation attempts and the strategy each playbook has learned",
	Args:  cobra.NoArgs,
	RunE:  runOutcomes,
}

func runOutcomes(cmd *cobra.Command, args []string) error {
	memory, err := orchestrator.NewOutcomeMemory(store.DB())
	if err != nil {
		return err
	}
	recs, err := memory.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(recs)
	}

	fmt.Printf("%-12s  %-10s  %-9s  %-9s  %3s  %5s  %7s  %-10s  %s\n",
		"Turn", "Playbook", "Voice", "Strategy", "#", "Grade", "Overall", "Failure", "Accepted")
	seen := map[string]bool{}
	var playbooks []string
	for _, r := range recs {
		fmt.Printf("%-12s  %-10s  %-9s  %-9s  %3d  %5s  %7.2f  %-10s  %t\n",
			shortID(r.TurnID), r.Playbook, r.Voice, r.StrategyID, r.AttemptNum, r.Grade, r.Overall, r.Failure, r.Accepted)
		if !seen[string(r.Playbook)] {
			seen[string(r.Playbook)] = true
			playbooks = append(playbooks, string(r.Playbook))
		}
	}

	fmt.Println("\nLearned strategies:")
	for _, pb := range sorted(playbooks) {
		id, score, err := memory.BestStrategy(playbook.Playbook(pb))
		if err != nil {
			return err
		}
		if id == "" {
			fmt.Printf("  %-10s  (not enough samples)\n", pb)
			continue
		}
		fmt.Printf("  %-10s  %s (%.2f)\n", pb, id, score)
	}
	return nil
}

// #endregion outcomes

// #region export
var exportCmd = &cobra.Command{
	Use:   "export <session>",
	Short: "Write a session's recorded turns as a replay fixture",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	id := args[0]
	recs, err := logging.LoadTurns(context.Background(), store.DB(), id)
	if err != nil {
		return err
	}
	f, err := replay.FromRecords(id, recs)
	if err != nil {
		return fmt.Errorf("export %s: %w", id, err)
	}
	f.Description = fmt.Sprintf("exported from %s", dbPath)

	path := exportOut
	if path == "" {
		path = id + ".json"
	}
	if err := replay.SaveFixture(path, f); err != nil {
		return err
	}
	fmt.Printf("wrote %d turns to %s\n", len(f.Turns), path)
	return nil
}

// #endregion export

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func sorted(s []string) []string {
	out := append([]string(nil), s...)
	slices.Sort(out)
	return out
}
