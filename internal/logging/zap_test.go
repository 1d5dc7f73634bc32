package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts Options
		want zapcore.Level
	}{
		{name: "default", opts: Options{}, want: zapcore.InfoLevel},
		{name: "verbose", opts: Options{Verbose: true}, want: zapcore.DebugLevel},
		{name: "explicit level wins", opts: Options{Verbose: true, Level: "warn"}, want: zapcore.WarnLevel},
		{name: "json", opts: Options{JSON: true, Level: "error"}, want: zapcore.ErrorLevel},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logger, err := New(tc.opts)
			require.NoError(t, err)
			require.Equal(t, tc.want, logger.Level())
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Level: "chatty"})
	require.ErrorContains(t, err, "invalid log level")
}
