package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iolloyd/netwatch/internal/hosting"
	"github.com/iolloyd/netwatch/internal/logging"
	"github.com/iolloyd/netwatch/internal/models"
	"github.com/iolloyd/netwatch/internal/procs/procstest"
	"github.com/iolloyd/netwatch/internal/resolver"
)

func newNamed(table *procstest.Table, registry *procstest.Registry, targets ...*models.Target) *Named {
	res := resolver.New(table, registry, nil)
	return NewNamed(targets, res, table, logging.Discard())
}

func TestNamedBindsUnboundTargets(t *testing.T) {
	table := procstest.NewTable(models.Process{PID: 100, Name: "nginx"})
	registry := procstest.NewRegistry(map[string]int{"DefaultAppPool": 4120})
	nginx := models.NewTarget("nginx", models.HostingUnknown)
	pool := models.NewTarget("DefaultAppPool", models.HostingUnknown)
	missing := models.NewTarget("redis", models.HostingUnknown)
	n := newNamed(table, registry, nginx, pool, missing)

	changes, err := n.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Change{
		{Name: "nginx", OldPID: 0, NewPID: 100},
		{Name: "DefaultAppPool", OldPID: 0, NewPID: 4120},
	}, changes)

	assert.Equal(t, models.HostingDirect, nginx.Kind)
	assert.Equal(t, models.HostingSlot, pool.Kind)
	assert.Equal(t, "w3wp:DfltAppPl", pool.ShortName)
	assert.Equal(t, models.HostingUnknown, missing.Kind)
	assert.False(t, missing.Bound())

	pids, filtered := n.Filter()
	assert.True(t, filtered)
	assert.Equal(t, []int{100, 4120}, pids)
}

func TestNamedLiveTargetIsNotResolvedAgain(t *testing.T) {
	table := procstest.NewTable(models.Process{PID: 100, Name: "nginx"})
	n := newNamed(table, procstest.NewRegistry(nil), models.NewTarget("nginx", models.HostingDirect))

	_, err := n.Refresh(context.Background())
	require.NoError(t, err)
	lookups := table.Lookups()

	// a second nginx appears; the bound target must not churn
	table.Start(200, "nginx")
	changes, err := n.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, lookups, table.Lookups())
	assert.Equal(t, 100, n.Targets()[0].PID)
}

func TestNamedDeadTargetUnbindsOnce(t *testing.T) {
	table := procstest.NewTable(models.Process{PID: 100, Name: "nginx"})
	target := models.NewTarget("nginx", models.HostingUnknown)
	n := newNamed(table, procstest.NewRegistry(nil), target)

	_, err := n.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 100, target.PID)

	table.Kill(100)
	changes, err := n.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Change{{Name: "nginx", OldPID: 100, NewPID: 0}}, changes)
	assert.False(t, target.Bound())
	assert.Equal(t, models.HostingDirect, target.Kind)

	changes, err = n.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changes)

	_, filtered := n.Filter()
	assert.True(t, filtered)
}

func TestNamedRestartedTargetRebindsInSameTick(t *testing.T) {
	table := procstest.NewTable(models.Process{PID: 100, Name: "nginx"})
	target := models.NewTarget("nginx", models.HostingDirect)
	n := newNamed(table, procstest.NewRegistry(nil), target)

	_, err := n.Refresh(context.Background())
	require.NoError(t, err)

	table.Kill(100)
	table.Start(150, "nginx")
	changes, err := n.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Change{{Name: "nginx", OldPID: 100, NewPID: 150}}, changes)
}

func TestNamedSlotRecycle(t *testing.T) {
	table := procstest.NewTable(models.Process{PID: 4120, Name: "w3wp"})
	registry := procstest.NewRegistry(map[string]int{"Billing": 4120})
	target := models.NewTarget("Billing", models.HostingSlot)
	n := newNamed(table, registry, target)

	_, err := n.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4120, target.PID)

	table.Kill(4120)
	table.Start(5000, "w3wp")
	registry.Set("Billing", 5000)

	changes, err := n.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Change{{Name: "Billing", OldPID: 4120, NewPID: 5000}}, changes)
	assert.Equal(t, "Billing", target.ShortName, "short names pass through under eight characters")
	assert.Equal(t, 1, registry.Invalidations)
}

func TestNamedSlotRecycleBypassesCachedListing(t *testing.T) {
	table := procstest.NewTable(models.Process{PID: 4120, Name: "w3wp"})
	listing := `WP "4120" (applicationPool:Billing)`
	runs := 0
	registry := hosting.NewAppCmdWithRunner(func(ctx context.Context) (string, error) {
		runs++
		return listing, nil
	}, time.Hour)

	target := models.NewTarget("Billing", models.HostingSlot)
	n := NewNamed([]*models.Target{target}, resolver.New(table, registry, nil), table, logging.Discard())

	_, err := n.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4120, target.PID)

	table.Kill(4120)
	table.Start(5000, "w3wp")
	listing = `WP "5000" (applicationPool:Billing)`

	changes, err := n.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Change{{Name: "Billing", OldPID: 4120, NewPID: 5000}}, changes)
	assert.Equal(t, 2, runs)

	// a live target does not refresh the listing
	_, err = n.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
}

func TestNamedLookupAndSharedPID(t *testing.T) {
	table := procstest.NewTable(models.Process{PID: 100, Name: "nginx"})
	byName := models.NewTarget("nginx", models.HostingUnknown)
	byPID := models.NewTarget("100", models.HostingUnknown)
	lost := models.NewTarget("redis", models.HostingUnknown)
	n := newNamed(table, procstest.NewRegistry(nil), byName, byPID, lost)

	_, err := n.Refresh(context.Background())
	require.NoError(t, err)

	pids, _ := n.Filter()
	assert.Equal(t, []int{100}, pids)

	got, ok := n.Lookup(100)
	require.True(t, ok)
	assert.Same(t, byName, got)

	_, ok = n.Lookup(0)
	assert.False(t, ok, "unbound targets never join")
}

func TestNamedPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	table := procstest.NewTable()
	table.Err = boom
	n := newNamed(table, procstest.NewRegistry(nil), models.NewTarget("nginx", models.HostingUnknown))

	_, err := n.Refresh(context.Background())
	assert.ErrorIs(t, err, boom)
}

func records(pids ...int) []models.ConnectionRecord {
	out := make([]models.ConnectionRecord, len(pids))
	for i, pid := range pids {
		out[i] = models.ConnectionRecord{Protocol: models.ProtocolTCP, State: models.StateListening, PID: pid}
	}
	return out
}

func TestDiscoveryChurn(t *testing.T) {
	table := procstest.NewTable(
		models.Process{PID: 100, Name: "nginx"},
		models.Process{PID: 200, Name: "postgres"},
	)
	d := NewDiscovery(table, logging.Discard())
	ctx := context.Background()

	_, filtered := d.Filter()
	assert.False(t, filtered)

	require.NoError(t, d.Observe(ctx, records(100, 200, 100, 300)))
	targets := d.Targets()
	require.Len(t, targets, 3)
	assert.Equal(t, "nginx", targets[0].Name)
	assert.Equal(t, "postgres", targets[1].Name)
	assert.Equal(t, TerminatedName, targets[2].Name)
	assert.Equal(t, models.HostingDirect, targets[0].Kind)
	assert.Equal(t, 3, table.NameCalls)

	// known pids are reused, absent ones dropped
	table.Start(400, "redis-server")
	require.NoError(t, d.Observe(ctx, records(100, 400)))
	assert.Equal(t, 4, table.NameCalls)
	targets = d.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, 100, targets[0].PID)
	assert.Equal(t, "redis-server", targets[1].Name)

	_, ok := d.Lookup(200)
	assert.False(t, ok)

	require.NoError(t, d.Observe(ctx, nil))
	assert.Empty(t, d.Targets())
}
