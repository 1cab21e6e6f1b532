package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestCentralLogger(t *testing.T, cfg *LoggingConfig) (*CentralLogger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	cl, err := newCentralLogger(cfg, buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })
	return cl, buf
}

func TestModuleLevels(t *testing.T) {
	cl, buf := newTestCentralLogger(t, &LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: true, Level: "trace"},
		ModuleLevels: map[string]string{"detector": "debug"},
	})

	cl.Module("api").Debug("hidden api debug")
	cl.Module("detector").Debug("visible detector debug")
	cl.Module("detector").Trace("hidden detector trace")
	cl.Module("api").Info("visible api info")

	out := buf.String()
	assert.NotContains(t, out, "hidden api debug")
	assert.Contains(t, out, "visible detector debug")
	assert.NotContains(t, out, "hidden detector trace")
	assert.Contains(t, out, "visible api info")
	assert.Contains(t, out, "[detector]")
}

func TestConsoleFormat(t *testing.T) {
	cl, buf := newTestCentralLogger(t, &LoggingConfig{DefaultLevel: "info", Timezone: "UTC"})

	cl.Module("imagestore").With(String("username", "ali")).Warn("write failed",
		String("reason", "disk full"),
		Int("attempt", 1),
		Float64("ratio", 0.123456))

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "WARN  [imagestore] write failed")
	assert.Contains(t, line, "username=ali")
	assert.Contains(t, line, `reason="disk full"`)
	assert.Contains(t, line, "attempt=1")
	assert.Contains(t, line, "ratio=0.123")
}

func TestSubModuleAndTraceID(t *testing.T) {
	cl, buf := newTestCentralLogger(t, &LoggingConfig{DefaultLevel: "info", Timezone: "UTC"})

	ctx := WithTraceID(context.Background(), "req-42")
	cl.Module("api").Module("recognition").WithContext(ctx).Info("handled")

	out := buf.String()
	assert.Contains(t, out, "[api.recognition]")
	assert.Contains(t, out, "trace_id=req-42")
	assert.Equal(t, "req-42", TraceIDFromContext(ctx))
	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestFileOutputIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fishnet.log")
	cl, _ := newTestCentralLogger(t, &LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path},
	})

	cl.Module("classifier").Debug("classified", String("label", "Siakap"), Error(errors.New("none")))
	require.NoError(t, cl.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "classified", record["msg"])
	assert.Equal(t, "classifier", record["module"])
	assert.Equal(t, "Siakap", record["label"])
	assert.Equal(t, "none", record["error"])
}

func TestInvalidTimezone(t *testing.T) {
	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = NewCentralLogger(nil)
	require.Error(t, err)
}

func TestGormAdapterLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	adapter := NewGormLoggerAdapter(NewSlogLogger(buf, LogLevelTrace, time.UTC), 100*time.Millisecond)
	sql := func() (string, int64) { return "SELECT 1", 1 }

	adapter.Trace(context.Background(), time.Now(), sql, nil)
	adapter.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	adapter.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	adapter.Trace(context.Background(), time.Now(), sql, errors.New("locked"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"msg":"sql query"`)
	assert.Contains(t, lines[1], `"msg":"sql query"`)
	assert.Contains(t, lines[2], `"msg":"slow query"`)
	assert.Contains(t, lines[3], `"msg":"query error"`)
	assert.Contains(t, lines[3], `"error":"locked"`)
}

func TestEchoAdapter(t *testing.T) {
	buf := &bytes.Buffer{}
	adapter := NewEchoLoggerAdapter(NewSlogLogger(buf, LogLevelDebug, nil))

	adapter.Infof("listening on %s", ":8080")
	adapter.Debug("route ", "added")

	out := buf.String()
	assert.Contains(t, out, "listening on :8080")
	assert.Contains(t, out, "route added")
	assert.Panics(t, func() { adapter.Fatal("bind failed") })
}

func TestRedaction(t *testing.T) {
	assert.Equal(t, "password=[REDACTED] user=ali", RedactSensitiveData("password=hunter2 user=ali"))
	assert.Equal(t, "tcp://fish:[REDACTED]@db:3306", RedactSensitiveData("tcp://fish:secretpw@db:3306"))
	assert.Empty(t, RedactSensitiveData(""))

	form := RedactFormValues(map[string][]string{
		"username": {"ali"},
		"password": {"hunter2"},
		"email":    {strings.Repeat("a", 100)},
		"empty":    {},
	})
	assert.Equal(t, "ali", form["username"])
	assert.Equal(t, "[REDACTED]", form["password"])
	assert.Len(t, form["email"], 67)
	assert.NotContains(t, form, "empty")
}
