package logger

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/showhn-judge/internal/config"
)

func TestSetup(t *testing.T) {
	t.Run("returns logger for valid level", func(t *testing.T) {
		logger, err := Setup(config.ServerConfig{LogLevel: "debug"})
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("falls back to info for unknown level", func(t *testing.T) {
		logger, err := Setup(config.ServerConfig{LogLevel: "loud"})
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
		assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	})
}

func TestFromContext(t *testing.T) {
	t.Run("round-trips a logger through the context", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
		ctx := WithLogger(context.Background(), logger)
		assert.Same(t, logger, FromContext(ctx))
	})

	t.Run("returns default logger for bare context", func(t *testing.T) {
		assert.NotNil(t, FromContext(context.Background()))
	})
}
