package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
counter:
  window_capacity: 30
  windw_size: 10
mqtt:
  brokr: tcp://x:1883
`), 0o644))

	keys, err := findUnknownKeys(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"counter.windw_size", "mqtt.brokr"}, keys)
}

func TestPrintUnknownKeys(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	printUnknownKeys(&buf, nil)
	assert.Empty(t, buf.String())

	printUnknownKeys(&buf, []string{"mqtt.brokr"})
	assert.Contains(t, buf.String(), "Found 1 unknown configuration key(s)")
	assert.Contains(t, buf.String(), "- mqtt.brokr")
}

func TestRunValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capture:\n  frames: /tmp/frames\n"), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"validate", "--config", path})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Configuration is valid")
	assert.Contains(t, out.String(), "frames in /tmp/frames")
	assert.Contains(t, out.String(), "midrange baseline over 50 samples every 100ms")
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	require.NoError(t, rootCmd.ParseFlags([]string{"--frames", "/data/frames", "--log-level", "debug"}))
	defer resetFlags(t, "frames", "log-level")
	configPath = ""

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, "/data/frames", cfg.Capture.Frames)
	assert.Equal(t, "debug", cfg.Logging.Level)

	_, ok := newSource(cfg).(interface{ Remaining() int })
	assert.True(t, ok, "frame directories replay through a sequence source")
}

func TestLoadConfigRejectsInvalidLogLevel(t *testing.T) {
	require.NoError(t, rootCmd.ParseFlags([]string{"--log-level", "bogus"}))
	defer resetFlags(t, "log-level")
	configPath = ""

	_, err := loadConfig(rootCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func resetFlags(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		f := rootCmd.Flags().Lookup(name)
		require.NotNil(t, f)
		require.NoError(t, f.Value.Set(""))
		f.Changed = false
	}
}
