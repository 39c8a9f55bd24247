package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/arbiter/internal/audit"
	"github.com/danielpatrickdp/arbiter/internal/codec"
	"github.com/danielpatrickdp/arbiter/internal/config"
	"github.com/danielpatrickdp/arbiter/internal/logging"
	"github.com/danielpatrickdp/arbiter/internal/orchestrator"
	"github.com/danielpatrickdp/arbiter/internal/state"
	"github.com/danielpatrickdp/arbiter/internal/telemetry"
)

var (
	configPath string
	verbose    bool
	sessionID  string

	cfg    config.Config
	logger *zap.Logger
)

// #region root
var rootCmd = &cobra.Command{
	Use:   "controller",
	Short: "Interactive arbitration pipeline",
	Long: `Runs user turns through the arbitration pipeline: metrics update, phase,
playbook and voice selection, rituals, generation, signature enforcement and
evaluation, with every decision written to the audit log.

Run without arguments to start an interactive session. Prefix a line with
"/ritual <name>" to invoke a ritual for that turn.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		lc := logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development}
		if verbose {
			lc.Level = "debug"
		}
		logger, err = logging.New(lc)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "arbiter.yaml", "Config file (missing file = defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Flags().StringVarP(&sessionID, "session", "s", "default", "Session ID")

	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// #endregion root

// #region runtime

// runtime is everything a chat session holds open.
type runtime struct {
	orch      *orchestrator.Orchestrator
	telemetry *telemetry.Provider
	closers   []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}
}

// openRuntime wires the pipeline from cfg. SQLite always backs the audit, provenance and
// outcome tables; sessions move to Redis when redis_addr is set.
func openRuntime(ctx context.Context) (*runtime, error) {
	rt := &runtime{}

	db, err := state.NewStore(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	rt.closers = append(rt.closers, db.Close)

	var sessions state.SessionStore = db
	if cfg.RedisAddr != "" {
		rs, err := state.DialRedis(ctx, cfg.RedisAddr, state.DefaultRedisConfig())
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, rs.Close)
		sessions = rs
		logger.Info("sessions in redis", zap.String("addr", cfg.RedisAddr))
	}

	var gen codec.Generator = codec.EchoGenerator{}
	if cfg.GeneratorAddr != "" {
		client, err := codec.NewClient(cfg.GeneratorAddr)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, client.Close)
		gen = client
	}

	log := audit.NewLog(audit.LogConfig{Capacity: cfg.Audit.Capacity})
	if cfg.Audit.Persist {
		sink, err := logging.NewAuditSink(db.DB(), logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		sink.Attach(log)
	}

	rt.telemetry, err = telemetry.NewProvider()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, func() error { return rt.telemetry.Shutdown(context.Background()) })
	rt.telemetry.Recorder.Attach(log)

	memory, err := orchestrator.NewOutcomeMemory(db.DB())
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.orch, err = orchestrator.New(orchestrator.FromConfig(cfg), orchestrator.Deps{
		Store:     sessions,
		Generator: gen,
		Log:       log,
		Memory:    memory,
		TurnDB:    db.DB(),
		Telemetry: rt.telemetry.Recorder,
		Logger:    logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// #endregion runtime
