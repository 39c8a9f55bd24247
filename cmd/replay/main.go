package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/arbiter/internal/config"
	"github.com/danielpatrickdp/arbiter/internal/logging"
	"github.com/danielpatrickdp/arbiter/internal/orchestrator"
	"github.com/danielpatrickdp/arbiter/internal/replay"
	"github.com/danielpatrickdp/arbiter/internal/state"
)

var (
	configPath string
	dbPath     string
	sessionID  string
	verbose    bool

	logger *zap.Logger
)

// errDiverged makes the process exit non-zero without printing a second message.
var errDiverged = errors.New("replay diverged")

// #region root
var rootCmd = &cobra.Command{
	Use:   "replay [fixture.json ...]",
	Short: "Replay recorded turns and report arbitration divergences",
	Long: `Replays fixtures (or a session straight from an arbiter database) through the
arbitration stages with the recorded replies standing in for generation, and
reports every turn whose voice, playbook, phase, ritual or grade differs.

  replay testdata/anchor_then_crisis.json
  replay --db arbiter.db --session default`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lc := logging.Config{}
		if verbose {
			lc.Level = "debug"
		}
		var err error
		logger, err = logging.New(lc)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	RunE: runReplay,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Config the session was recorded under (default: built-in)")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "Replay a session from this database instead of fixture files")
	rootCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session to replay with --db")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errDiverged) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// #endregion root

// #region run
func runReplay(cmd *cobra.Command, args []string) error {
	switch {
	case dbPath != "" && len(args) > 0:
		return errors.New("pass fixture files or --db, not both")
	case dbPath == "" && len(args) == 0:
		return cmd.Usage()
	case dbPath != "" && sessionID == "":
		return errors.New("--db needs --session")
	}

	rc, err := harnessConfig()
	if err != nil {
		return err
	}
	h := replay.NewHarness(rc, nil)

	var fixtures []*replay.Fixture
	if dbPath != "" {
		f, err := fixtureFromDB(cmd.Context())
		if err != nil {
			return err
		}
		fixtures = append(fixtures, f)
	}
	for _, path := range args {
		f, err := replay.LoadFixture(path)
		if err != nil {
			return err
		}
		fixtures = append(fixtures, f)
	}

	failed := 0
	for _, f := range fixtures {
		report, err := h.Run(f)
		if err != nil {
			return fmt.Errorf("replay %s: %w", f.Name, err)
		}
		fmt.Fprint(cmd.OutOrStdout(), report)
		logger.Debug("replayed", zap.String("fixture", f.Name),
			zap.Int("turns", len(report.Turns)), zap.Int("divergent", report.Divergent))
		if !report.OK() {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d fixtures diverged\n", failed, len(fixtures))
		return errDiverged
	}
	return nil
}

// harnessConfig maps the recording config onto the replay harness.
func harnessConfig() (replay.Config, error) {
	if configPath == "" {
		return replay.DefaultConfig(), nil
	}
	c, err := config.Load(configPath)
	if err != nil {
		return replay.Config{}, err
	}
	oc := orchestrator.FromConfig(c)
	return replay.Config{
		Arbiter:       oc.Arbiter,
		AlwaysEnforce: oc.AlwaysEnforce,
		HistoryLimit:  oc.HistoryLimit,
	}, nil
}

func fixtureFromDB(ctx context.Context) (*replay.Fixture, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	store, err := state.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	recs, err := logging.LoadTurns(ctx, store.DB(), sessionID)
	if err != nil {
		return nil, err
	}
	return replay.FromRecords(sessionID, recs)
}

// #endregion run
