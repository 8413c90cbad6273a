package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/readitlater/infrastructure/logging"
)

func TestFromZap_WithFieldDoesNotMutateParent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	parent := logging.FromZap(zap.New(core))

	child := parent.WithField("queue_name", "read-it-later-article-processing-dev")
	child.Info("child")
	parent.Info("parent")

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "child", entries[0].Message)
	assert.Equal(t, "read-it-later-article-processing-dev", entries[0].ContextMap()["queue_name"])

	assert.Equal(t, "parent", entries[1].Message)
	assert.NotContains(t, entries[1].ContextMap(), "queue_name")
}

func TestFromZap_WithFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.FromZap(zap.New(core)).WithFields(map[string]any{
		"environment": "prod",
		"region":      "eu-west-1",
	})

	logger.Warnf("drift detected in %d resources", 2)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "drift detected in 2 resources", entries[0].Message)
	assert.Equal(t, "prod", entries[0].ContextMap()["environment"])
	assert.Equal(t, "eu-west-1", entries[0].ContextMap()["region"])
}

func TestFromZap_Levels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	logger := logging.FromZap(zap.New(core))

	logger.Debug("hidden")
	logger.Debugf("hidden %s", "too")
	logger.Info("info")
	logger.Errorf("error %d", 1)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "error 1", entries[1].Message)
}

func TestNop(t *testing.T) {
	t.Parallel()

	logger := logging.Nop()
	assert.NotPanics(t, func() {
		logger.WithField("k", "v").WithFields(map[string]any{"a": 1}).Error("ignored")
	})
}
