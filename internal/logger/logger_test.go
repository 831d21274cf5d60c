package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel, format LogFormat) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Format: format, Output: &buf, Component: "test"}), &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "line is not JSON: %s", line)
		entries = append(entries, entry)
	}
	return entries
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  int
	}{
		{DEBUG, 4},
		{INFO, 3},
		{WARN, 2},
		{ERROR, 1},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			l, buf := newBufferLogger(tt.level, JSONFormat)
			l.Debug("d")
			l.Info("i")
			l.Warn("w")
			l.Error("e", nil)
			assert.Len(t, decodeLines(t, buf), tt.want)
		})
	}
}

func TestJSONEntry(t *testing.T) {
	l, buf := newBufferLogger(INFO, JSONFormat)
	l.Error("fetch failed", errors.New("status 503"), Fields{"source": "ilo", "rows": 12})

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "ERROR", e.Level)
	assert.Equal(t, "fetch failed", e.Message)
	assert.Equal(t, "test", e.Component)
	assert.Equal(t, "status 503", e.Error)
	assert.Equal(t, "ilo", e.Fields["source"])
	assert.Equal(t, float64(12), e.Fields["rows"])
	assert.True(t, strings.HasPrefix(e.Caller, "logger_test.go:"), e.Caller)
}

func TestTextEntrySortsFields(t *testing.T) {
	l, buf := newBufferLogger(INFO, TextFormat)
	l.Info("normalized", Fields{"z": 1, "a": "x"})

	out := buf.String()
	assert.Contains(t, out, "INFO [test] normalized")
	assert.Contains(t, out, "fields={a=x, z=1}")
}

func TestWithAddsFieldsWithoutMutatingParent(t *testing.T) {
	parent, buf := newBufferLogger(INFO, JSONFormat)
	child := parent.WithComponent("selector").With(Fields{"domain": "trade"})

	child.Info("child")
	parent.Info("parent")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "selector", entries[0].Component)
	assert.Equal(t, "trade", entries[0].Fields["domain"])
	assert.Equal(t, "test", entries[1].Component)
	assert.Nil(t, entries[1].Fields)
}

func TestCallFieldsOverrideLoggerFields(t *testing.T) {
	l, buf := newBufferLogger(INFO, JSONFormat)
	l.With(Fields{"source": "wb"}).Info("x", Fields{"source": "imf"})

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "imf", entries[0].Fields["source"])
}

func TestFatalExits(t *testing.T) {
	l, buf := newBufferLogger(INFO, JSONFormat)
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatal("cannot continue", errors.New("boom"))

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "cannot continue")
}

func TestFormattedLogging(t *testing.T) {
	l, buf := newBufferLogger(INFO, JSONFormat)
	l.Infof("wrote %d rows to %s", 42, "trade.csv")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "wrote 42 rows to trade.csv", entries[0].Message)
}

func TestGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	l, buf := newBufferLogger(INFO, JSONFormat)
	SetGlobalLogger(l)

	Info("global info")
	Component("server").Warn("global warn")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "INFO", entries[0].Level)
	assert.Equal(t, "server", entries[1].Component)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"debug": DEBUG, "INFO": INFO, "warning": WARN, " error ": ERROR, "Fatal": FATAL} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestConfigure(t *testing.T) {
	l, buf := newBufferLogger(INFO, JSONFormat)

	require.NoError(t, Configure(l, "warn", "text"))
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WARN [test] shown")

	assert.Error(t, Configure(l, "", "yaml"))
	require.NoError(t, Configure(l, "", ""))
	assert.True(t, l.Enabled(WARN))
	assert.False(t, l.Enabled(INFO))
}

func BenchmarkJSONLogging(b *testing.B) {
	var buf bytes.Buffer
	l := New(Config{Level: INFO, Format: JSONFormat, Output: &buf})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Info("benchmark", Fields{"iteration": i})
	}
}
