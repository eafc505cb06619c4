package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "veda.log")
	log, err := New(path, zap.InfoLevel)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("instance spawned", zap.String("instance", "Veda-2"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"instance spawned"`)
	assert.Contains(t, string(data), `"instance":"Veda-2"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestGlobal(t *testing.T) {
	defer SetGlobal(nil)

	assert.NotNil(t, L())
	l := zap.NewExample()
	SetGlobal(l)
	assert.Same(t, l, L())
	SetGlobal(nil)
	assert.NotNil(t, L())
}

func TestProjectPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/repo", ".veda", "logs", "veda.log"), ProjectPath("/repo"))
}
