package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/arbiter/internal/audit"
	"github.com/danielpatrickdp/arbiter/internal/orchestrator"
	"github.com/danielpatrickdp/arbiter/internal/ritual"
	"github.com/danielpatrickdp/arbiter/internal/telemetry"
)

// #region chat
func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Arbiter ready.")
	fmt.Fprintf(out, "  DB: %s | Generator: %s | Session: %s\n", cfg.DB, generatorName(), sessionID)
	fmt.Fprintln(out, "Commands: /ritual <name> <text>, /rituals, /audit, /metrics, quit")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "quit" || line == "exit":
			return nil
		case line == "/rituals":
			for _, n := range ritual.Names() {
				fmt.Fprintf(out, "  %s\n", n)
			}
			continue
		case line == "/audit":
			fmt.Fprint(out, rt.orch.Log().Report(audit.Filter{}))
			continue
		case line == "/metrics":
			snap, err := rt.telemetry.Snapshot(ctx)
			if err != nil {
				logger.Warn("metrics snapshot", zap.Error(err))
				continue
			}
			fmt.Fprint(out, telemetry.Format(snap))
			continue
		}

		req, err := parseLine(line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		res, err := rt.orch.Turn(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("turn failed", zap.Error(err))
			continue
		}
		printTurn(cmd, res)
	}
	return scanner.Err()
}

// parseLine turns "/ritual name text" into an invoked ritual; anything else is plain text.
func parseLine(line string) (orchestrator.Request, error) {
	req := orchestrator.Request{SessionID: sessionID, Text: line}
	rest, ok := strings.CutPrefix(line, "/ritual ")
	if !ok {
		return req, nil
	}
	name, text, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if _, err := ritual.Get(ritual.Name(name)); err != nil {
		return req, err
	}
	req.Ritual = ritual.Name(name)
	req.Text = strings.TrimSpace(text)
	if req.Text == "" {
		req.Text = name
	}
	return req, nil
}

func printTurn(cmd *cobra.Command, res orchestrator.TurnResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s\n\n", res.Response)

	rit := "none"
	if res.Ritual != nil {
		rit = string(res.Ritual.Ritual)
	}
	fmt.Fprintf(out, "[turn %d] voice=%s playbook=%s phase=%s ritual=%s grade=%s (%.2f) attempts=%d\n",
		res.Session.Turn, res.Voice, res.Playbook.Playbook, res.Phase, rit,
		res.Eval.Grade, res.Eval.Overall, len(res.Attempts))
	if res.Drift.Level != audit.DriftStable {
		fmt.Fprintf(out, "drift: %s\n", res.Drift.Level)
	}
}

func generatorName() string {
	if cfg.GeneratorAddr == "" {
		return "echo"
	}
	return cfg.GeneratorAddr
}

// #endregion chat
