package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iolloyd/netwatch/internal/models"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
interval: 30s
listen: 127.0.0.1:9100
targets:
  - name: nginx
  - name: DefaultAppPool
    kind: slot
  - name: "1234"
    kind: process
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, "127.0.0.1:9100", cfg.Listen)
	assert.Equal(t, "netstat", cfg.Netstat, "defaults survive")
	assert.Equal(t, 5*time.Second, cfg.SlotCacheTTL)

	targets, err := cfg.LogicalTargets()
	require.NoError(t, err)
	require.Len(t, targets, 3)
	assert.Equal(t, models.HostingUnknown, targets[0].Kind)
	assert.Equal(t, models.HostingSlot, targets[1].Kind)
	assert.Equal(t, "w3wp:DfltAppPl", targets[1].ShortName)
	assert.Equal(t, models.HostingDirect, targets[2].Kind)
	assert.False(t, targets[2].Bound())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interval: [oops"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Interval = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Targets = []Target{{Name: "x", Kind: "container"}}
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Targets = []Target{{Name: "  "}}
	assert.Error(t, bad.Validate())
}

func TestParseTargetArg(t *testing.T) {
	assert.Equal(t, Target{Name: "DefaultAppPool", Kind: "slot"}, ParseTargetArg("slot:DefaultAppPool"))
	assert.Equal(t, Target{Name: "nginx", Kind: "process"}, ParseTargetArg("proc:nginx"))
	assert.Equal(t, Target{Name: "nginx"}, ParseTargetArg("nginx"))
	assert.Equal(t, Target{Name: "C:"}, ParseTargetArg("C:"))
	assert.Equal(t, Target{Name: "odd:name"}, ParseTargetArg("odd:name"))
}
