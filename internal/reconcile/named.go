// Package reconcile keeps logical targets bound to the pids currently behind
// them.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/iolloyd/netwatch/internal/logging"
	"github.com/iolloyd/netwatch/internal/models"
	"github.com/iolloyd/netwatch/internal/procs"
	"github.com/iolloyd/netwatch/internal/resolver"
)

// Named tracks a fixed set of configured targets across process restarts.
// Targets are never discarded; a lost target drops back to pid 0 until it can
// be resolved again.
type Named struct {
	targets  []*models.Target
	resolver *resolver.Resolver
	table    procs.Table
	log      *logging.Logger
}

// NewNamed creates a tracker owning targets
func NewNamed(targets []*models.Target, res *resolver.Resolver, table procs.Table, log *logging.Logger) *Named {
	return &Named{
		targets:  targets,
		resolver: res,
		table:    table,
		log:      log,
	}
}

func (n *Named) Mode() models.Mode {
	return models.ModeNamed
}

// Refresh runs one reconciliation tick. A bound target whose process is still
// alive is left alone. A bound target whose process died, and every unbound
// target, is resolved again. Each target yields at most one Change per tick,
// and only when its pid actually moved.
func (n *Named) Refresh(ctx context.Context) ([]models.Change, error) {
	var changes []models.Change

	for _, t := range n.targets {
		old := t.PID

		if t.Bound() {
			alive, err := n.table.Exists(ctx, t.PID)
			if err != nil {
				return changes, fmt.Errorf("failed to check %s (pid %d): %w", t.Name, t.PID, err)
			}
			if alive {
				continue
			}
			// a cached slot listing may still name the dead worker
			n.resolver.Invalidate()
		}

		res, err := n.resolver.Resolve(ctx, t.Name, t.Kind)
		if err != nil {
			return changes, fmt.Errorf("failed to resolve %s: %w", t.Name, err)
		}
		if res.Found {
			t.Bind(res.PID, res.Kind)
		} else if t.Bound() {
			t.Unbind()
		}

		if t.PID != old {
			changes = append(changes, models.Change{Name: t.Name, OldPID: old, NewPID: t.PID})
		}
	}

	if len(changes) > 0 {
		n.log.Infof("Tracked processes:\n%s", n.summary())
	}
	return changes, nil
}

func (n *Named) summary() string {
	var lines []string
	for _, t := range n.targets {
		if t.Bound() {
			lines = append(lines, t.String())
		}
	}
	if len(lines) == 0 {
		return "(none bound)"
	}
	return strings.Join(lines, "\n")
}

// Filter returns the distinct pids of bound targets. The listing is narrowed
// to them at the source.
func (n *Named) Filter() ([]int, bool) {
	var pids []int
	for i, t := range n.targets {
		if t.Bound() && !n.claimedBefore(i) {
			pids = append(pids, t.PID)
		}
	}
	return pids, true
}

// claimedBefore reports whether an earlier target tracks the same process as
// targets[i]
func (n *Named) claimedBefore(i int) bool {
	for _, prev := range n.targets[:i] {
		if prev.SameEntity(n.targets[i]) {
			return true
		}
	}
	return false
}

// Observe does nothing; named targets are refreshed before the listing is taken
func (n *Named) Observe(ctx context.Context, records []models.ConnectionRecord) error {
	return nil
}

// Lookup returns the first target bound to pid
func (n *Named) Lookup(pid int) (*models.Target, bool) {
	if pid == 0 {
		return nil, false
	}
	for _, t := range n.targets {
		if t.PID == pid {
			return t, true
		}
	}
	return nil, false
}

func (n *Named) Targets() []*models.Target {
	return n.targets
}
