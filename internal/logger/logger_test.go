package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLoggerWithWriters(t *testing.T) {
	var a, b bytes.Buffer
	l := NewLoggerWithWriters(false, &a, &b)
	l.Debug("hidden")
	l.Info("chat data loaded", zap.Int64("chat_id", 12))
	_ = l.Sync()

	for _, buf := range []*bytes.Buffer{&a, &b} {
		out := buf.String()
		require.Contains(t, out, "chat data loaded")
		require.Contains(t, out, `"chat_id": 12`)
		require.NotContains(t, out, "hidden")
	}
}

func TestNewLoggerWithWriters_Debug(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriters(true, &buf)
	l.Debug("user model loaded")
	require.Contains(t, buf.String(), "user model loaded")
}
