package logger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/collabdocs/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := logger.New("loud", "json")
	assert.Error(t, err)
}

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := logger.New("debug", format)
		require.NoError(t, err)
		assert.NotNil(t, l)
	}
}

func TestWithContextAddsIds(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cl := logger.NewContextLogger(zap.New(core))

	ctx := logger.WithRequestID(context.Background(), "req-1")
	ctx = logger.WithUserID(ctx, "user-1")
	ctx = logger.WithConnID(ctx, "conn-1")

	cl.LogError(ctx, errors.New("boom"), "edit failed")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "user-1", fields["user_id"])
	assert.Equal(t, "conn-1", fields["conn_id"])
	assert.Equal(t, "boom", fields["error"])
}

func TestWithContextWithoutIds(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cl := logger.NewContextLogger(zap.New(core))

	cl.LogInfo(context.Background(), "started")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].ContextMap())
}
