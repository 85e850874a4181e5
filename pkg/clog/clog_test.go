package clog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/apex/log"
	"github.com/stretchr/testify/require"
)

type bufCloser struct {
	bytes.Buffer
}

func (b *bufCloser) Close() error { return nil }

func TestHandlerFormatsLevelMessageAndFields(t *testing.T) {
	var buf bufCloser
	logger := &log.Logger{Handler: NewHandler(&buf), Level: log.DebugLevel}

	logger.WithField("transfer", "7").WithField("object", "obj-1").Infof("staged")

	line := buf.String()
	require.Contains(t, line, "INFO")
	require.Contains(t, line, "staged")
	// Fields come out sorted by name.
	require.Regexp(t, `object=obj-1 transfer=7`, line)
}

func TestSetLevelFromString(t *testing.T) {
	defer SetLevel(log.InfoLevel)

	require.NoError(t, SetLevelFromString("debug"))
	require.Equal(t, log.DebugLevel, Level())

	require.Error(t, SetLevelFromString("chatty"))
	require.Equal(t, log.DebugLevel, Level())
}

func TestSetOutputPathSwitchesToFile(t *testing.T) {
	Setup()
	defer func() {
		require.NoError(t, SetOutputPath("stdout"))
	}()

	path := filepath.Join(t.TempDir(), "staging.log")
	require.NoError(t, SetOutputPath(path))
	require.Equal(t, path, Output())

	ForTransfer(42).Infof("prepared")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "prepared")
	require.Contains(t, string(data), "transfer=42")
}

func TestSetOutputPathRejectsUnwritablePath(t *testing.T) {
	Setup()

	before := Output()
	err := SetOutputPath(filepath.Join(t.TempDir(), "missing", "staging.log"))
	require.Error(t, err)
	require.Equal(t, before, Output())
}
