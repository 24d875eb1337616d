package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/iolloyd/netwatch/internal/logging"
	"github.com/iolloyd/netwatch/internal/models"
	"github.com/iolloyd/netwatch/internal/procs"
)

// TerminatedName labels a pid that exited before its name could be read
const TerminatedName = "(terminated)"

// Discovery tracks whatever pids show up in the current snapshot. It only
// remembers the previous tick's pids, to avoid looking up names of processes
// it already knows. A pid reused by an unrelated process is not detected.
type Discovery struct {
	targets map[int]*models.Target
	table   procs.Table
	log     *logging.Logger
}

// NewDiscovery creates an empty tracker
func NewDiscovery(table procs.Table, log *logging.Logger) *Discovery {
	return &Discovery{
		targets: make(map[int]*models.Target),
		table:   table,
		log:     log,
	}
}

func (d *Discovery) Mode() models.Mode {
	return models.ModeDiscovery
}

// Refresh does nothing; discovery targets come from the snapshot itself
func (d *Discovery) Refresh(ctx context.Context) ([]models.Change, error) {
	return nil, nil
}

// Filter reports that the listing is not narrowed
func (d *Discovery) Filter() ([]int, bool) {
	return nil, false
}

// Observe drops targets whose pid left the snapshot and adds a target for
// every new pid, named from the process table.
func (d *Discovery) Observe(ctx context.Context, records []models.ConnectionRecord) error {
	present := make(map[int]bool, len(d.targets))
	for _, r := range records {
		present[r.PID] = true
	}

	for pid := range d.targets {
		if !present[pid] {
			delete(d.targets, pid)
		}
	}

	for _, r := range records {
		if _, known := d.targets[r.PID]; known {
			continue
		}
		name, ok, err := d.table.Name(ctx, r.PID)
		if err != nil {
			return fmt.Errorf("failed to name pid %d: %w", r.PID, err)
		}
		if !ok {
			name = TerminatedName
		}
		d.targets[r.PID] = models.NewProcessTarget(name, r.PID)
		d.log.Debugf("New process %d: %s", r.PID, name)
	}
	return nil
}

// Lookup returns the target for pid
func (d *Discovery) Lookup(pid int) (*models.Target, bool) {
	t, ok := d.targets[pid]
	return t, ok
}

// Targets returns the known targets ordered by pid
func (d *Discovery) Targets() []*models.Target {
	targets := make([]*models.Target, 0, len(d.targets))
	for _, t := range d.targets {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].PID < targets[j].PID
	})
	return targets
}
