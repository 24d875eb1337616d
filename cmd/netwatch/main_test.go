package main

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iolloyd/netwatch/internal/config"
	"github.com/iolloyd/netwatch/internal/logging"
	"github.com/iolloyd/netwatch/internal/reconcile"
	"github.com/iolloyd/netwatch/internal/report"
)

func TestParseArgsDefaults(t *testing.T) {
	cfg, err := parseArgs(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultInterval, cfg.Interval)
	assert.Empty(t, cfg.Targets)
	assert.Equal(t, "netstat", cfg.Netstat)
}

func TestParseArgsTargets(t *testing.T) {
	cfg, err := parseArgs([]string{"-interval", "10s", "-v", "nginx", "slot:DefaultAppPool", "4242"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, []config.Target{
		{Name: "nginx"},
		{Name: "DefaultAppPool", Kind: "slot"},
		{Name: "4242"},
	}, cfg.Targets)
}

func TestParseArgsFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interval: 2m\nlisten: :9000\ntargets:\n  - name: postgres\n"), 0o644))

	cfg, err := parseArgs([]string{"-config", path, "-listen", ":9100"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Interval)
	assert.Equal(t, ":9100", cfg.Listen)
	assert.Equal(t, []config.Target{{Name: "postgres"}}, cfg.Targets)
}

func TestParseArgsRejectsBadInterval(t *testing.T) {
	_, err := parseArgs([]string{"-interval", "0s"}, io.Discard)
	assert.Error(t, err)

	_, err = parseArgs([]string{"-h"}, io.Discard)
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestBuildTracker(t *testing.T) {
	cfg := config.Default()
	cfg.NoSlots = true

	tracker, err := buildTracker(cfg, &report.Recorder{}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &reconcile.Discovery{}, tracker)

	cfg.Targets = []config.Target{{Name: "nginx"}}
	tracker, err = buildTracker(cfg, &report.Recorder{}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &reconcile.Named{}, tracker)
	require.Len(t, tracker.Targets(), 1)
	assert.Equal(t, "nginx", tracker.Targets()[0].Name)
}
