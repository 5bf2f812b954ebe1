package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		t.Run(format, func(t *testing.T) {
			l, err := New("debug", format)
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestZapWrapper_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapAdapter(zap.New(core))

	l.WithFields(Fields{"provider": "openai"}).
		WithError(errors.New("boom")).
		Warn("circuit opened", Fields{"failures": 5})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "circuit opened", entry.Message)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)

	ctx := entry.ContextMap()
	assert.Equal(t, "openai", ctx["provider"])
	assert.Equal(t, "boom", ctx["error"])
	assert.EqualValues(t, 5, ctx["failures"])
}

func TestZapWrapper_LevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewZapAdapter(zap.New(core))

	l.Debug("hidden", nil)
	l.Info("shown", nil)
	l.Error("shown too", Fields{"err": errors.New("x")})

	assert.Equal(t, 2, logs.Len())
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.Info("nothing", Fields{"a": 1})
	})
}
