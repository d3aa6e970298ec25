package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("sequencer", &buf, WARN)

	l.Info("не должно попасть")
	l.Warn("кандидат %d пропущен", 2)

	out := buf.String()
	assert.NotContains(t, out, "не должно попасть")
	assert.Contains(t, out, "[WARN] [sequencer] кандидат 2 пропущен")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("что-то"))
}

func TestLoggerManager_ComponentLoggerIsCached(t *testing.T) {
	LogDir = t.TempDir()
	lm := &LoggerManager{loggers: make(map[string]*Logger)}
	defer lm.CloseAll()

	a, err := lm.GetLogger("storage")
	assert.NoError(t, err)
	b, err := lm.GetLogger("storage")
	assert.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, []string{"storage"}, lm.ListComponents())
}

func TestLoggerManager_FallsBackToConsole(t *testing.T) {
	// LogDir указывает на файл, каталог логов создать нельзя
	blocker := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	LogDir = blocker
	lm := &LoggerManager{loggers: make(map[string]*Logger)}

	_, err := lm.GetLogger(ComponentSequencer)
	assert.Error(t, err)

	l := lm.MustGetLogger(ComponentSequencer)
	require.NotNil(t, l)
	assert.Nil(t, l.file)
	assert.Empty(t, lm.ListComponents())
	assert.Error(t, lm.SetLogLevel(ComponentSequencer, DEBUG, DEBUG))
}

func TestLoggerManager_ListComponentsSorted(t *testing.T) {
	LogDir = t.TempDir()
	lm := &LoggerManager{loggers: make(map[string]*Logger)}
	defer lm.CloseAll()

	for _, c := range []string{"storage", ComponentSequencer, "activator"} {
		_, err := lm.GetLogger(c)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"activator", ComponentSequencer, "storage"}, lm.ListComponents())
	assert.NoError(t, lm.SetLogLevel(ComponentSequencer, WARN, DEBUG))
}
