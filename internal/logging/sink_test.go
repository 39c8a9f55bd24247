package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/danielpatrickdp/arbiter/internal/audit"
	"github.com/danielpatrickdp/arbiter/internal/metrics"
)

func TestAuditSinkPersistsSubscribedEntries(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	sink, err := NewAuditSink(db, Nop())
	require.NoError(t, err)

	log := audit.NewLog(audit.LogConfig{Capacity: 2})
	sub := sink.Attach(log)
	defer sub.Unsubscribe()

	after := metrics.Neutral()
	after.Pain = 0.8
	log.Append(audit.Entry{Type: audit.MetricChange, Actor: "update",
		Delta: &audit.Delta{Before: metrics.Neutral(), After: after}})
	log.Append(audit.Entry{Type: audit.VoiceSelection, Actor: "voice", Details: map[string]any{"voice": "SAM"}})
	log.Append(audit.Entry{Type: audit.SystemEvent, Actor: "pipeline"})

	// the ring evicted the first entry, the sink kept it
	assert.Equal(t, 2, log.Len())
	all, err := sink.Recent(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, audit.MetricChange, all[0].Type)
	assert.Equal(t, audit.Critical, all[0].Severity)
	require.NotNil(t, all[0].Delta)
	assert.Equal(t, 0.8, all[0].Delta.After.Pain)
	assert.Equal(t, "SAM", all[1].Details["voice"])
	assert.Nil(t, all[2].Details)
	assert.False(t, all[2].Timestamp.IsZero())
}

func TestAuditSinkRecentFiltersAndLimits(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	sink, err := NewAuditSink(db, nil)
	require.NoError(t, err)

	log := audit.NewLog(audit.DefaultLogConfig())
	sink.Attach(log)
	for _, actor := range []string{"a", "b", "c"} {
		log.Append(audit.Entry{Type: audit.SystemEvent, Actor: actor})
	}
	log.Append(audit.Entry{Type: audit.DeltaViolation, Actor: "signature"})

	got, err := sink.Recent(context.Background(), audit.SystemEvent, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Actor)
	assert.Equal(t, "c", got[1].Actor)
}

func TestAuditSinkLogsWriteFailures(t *testing.T) {
	db := setupDB(t)
	core, logs := observer.New(zap.WarnLevel)
	sink, err := NewAuditSink(db, zap.New(core))
	require.NoError(t, err)
	db.Close()

	sink.Subscriber()(audit.Entry{ID: "e1", Type: audit.SystemEvent, Severity: audit.Info})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "persist audit entry failed", logs.All()[0].Message)
}

func TestNewLoggerLevels(t *testing.T) {
	logger, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = New(Config{})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}
