package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fmueller/voxbatch/internal/audio"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := NewRootCmd()
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

// writeTestWAV writes a short silent mono clip and returns its path.
func writeTestWAV(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, audio.EncodeWAV(make([]int16, 1600), audio.DefaultSampleRate), 0o644))
	return path
}
