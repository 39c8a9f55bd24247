package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/arbiter/internal/gate"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arbiter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.Signature.AlwaysEnforce)
	assert.Equal(t, gate.PolicyClamp, cfg.GatePolicy())
	assert.Equal(t, voice.RuleEchoMirror, cfg.SibylRule())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Audit, cfg.Audit)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
db: /tmp/x.db
gate:
  policy: reject
  max_delta: 0.1
voice:
  sibyl_rule: transition
  preferences:
    sam: 1.5
    hundun: 0.5
signature:
  always_enforce: false
pipeline:
  max_budget: 20s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/x.db", cfg.DB)
	assert.Equal(t, gate.PolicyReject, cfg.GatePolicy())
	assert.Equal(t, 0.1, cfg.Gate.MaxDelta)
	assert.Equal(t, voice.RuleTransition, cfg.SibylRule())
	assert.False(t, cfg.Signature.AlwaysEnforce)
	assert.Equal(t, 20*time.Second, cfg.Pipeline.MaxBudget)
	// untouched sections keep their defaults
	assert.Equal(t, 1000, cfg.Audit.Capacity)
	assert.Equal(t, map[voice.ID]float64{voice.Sam: 1.5, voice.Huyndun: 0.5}, cfg.Preferences())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvDB, "env.db")
	t.Setenv(EnvRedisAddr, "localhost:6379")
	t.Setenv(EnvGeneratorAddr, "localhost:50051")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvAuditCapacity, "25")
	t.Setenv(EnvSibylRule, "transition")
	t.Setenv(EnvEnabled, "false")

	cfg, err := Load(writeFile(t, "db: file.db\n"))
	require.NoError(t, err)

	assert.Equal(t, "env.db", cfg.DB)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "localhost:50051", cfg.GeneratorAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 25, cfg.Audit.Capacity)
	assert.Equal(t, voice.RuleTransition, cfg.SibylRule())
	assert.False(t, cfg.Enabled)
}

func TestEnvParseErrors(t *testing.T) {
	t.Setenv(EnvAuditCapacity, "many")
	_, err := Load("")
	assert.ErrorContains(t, err, EnvAuditCapacity)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.Audit.Capacity = 0
	cfg.Gate.Policy = "ignore"
	cfg.Voice.SibylRule = "moon"
	cfg.Voice.Preferences = map[string]float64{"nobody": 1, "sam": -1}
	cfg.Pipeline.MaxRetries = 5

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"audit.capacity", "gate policy", "sibyl rule", "unknown voice", "voice.preferences.sam", "max_retries"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeFile(t, "gate: [unclosed"))
	assert.ErrorContains(t, err, "parse config")
}
