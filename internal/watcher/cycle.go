// Package watcher runs observation cycles: take a connection snapshot,
// reconcile tracked targets, and report connections grouped by owner.
package watcher

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iolloyd/netwatch/internal/capture"
	"github.com/iolloyd/netwatch/internal/logging"
	"github.com/iolloyd/netwatch/internal/models"
	"github.com/iolloyd/netwatch/internal/parser"
	"github.com/iolloyd/netwatch/internal/report"
)

// Tracker owns the set of logical targets across cycles. It is only ever
// touched by the goroutine running the cycles.
type Tracker interface {
	Mode() models.Mode
	// Refresh re-validates targets before the snapshot is taken
	Refresh(ctx context.Context) ([]models.Change, error)
	// Filter returns the pids to narrow the snapshot to. filtered is false
	// when every connection is wanted.
	Filter() (pids []int, filtered bool)
	// Observe sees the parsed snapshot before it is joined
	Observe(ctx context.Context, records []models.ConnectionRecord) error
	// Lookup returns the target owning pid
	Lookup(pid int) (*models.Target, bool)
	Targets() []*models.Target
}

// Cycle performs one observation
type Cycle struct {
	lister capture.Lister
	sink   report.Sink
	log    *logging.Logger
	now    func() time.Time
}

// NewCycle creates a cycle reading snapshots from lister and publishing to sink
func NewCycle(lister capture.Lister, sink report.Sink, log *logging.Logger) *Cycle {
	return &Cycle{
		lister: lister,
		sink:   sink,
		log:    log,
		now:    time.Now,
	}
}

// RunOnce refreshes the tracker, takes a TCP snapshot including
// non-listening states, and publishes the grouped report. It returns nil
// without publishing when there is nothing to report: a named tracker with no
// bound target, or an empty snapshot.
func (c *Cycle) RunOnce(ctx context.Context, tracker Tracker) (*models.Report, error) {
	changes, err := tracker.Refresh(ctx)
	for _, ch := range changes {
		c.sink.Change(ch)
	}
	if err != nil {
		return nil, err
	}

	pids, filtered := tracker.Filter()
	if filtered && len(pids) == 0 {
		c.log.Debugf("No tracked process is running")
		return nil, nil
	}

	tcp := models.ProtocolTCP
	raw, err := c.lister.List(ctx, capture.Query{Protocol: &tcp, AllStates: true, PIDs: pids})
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	records, err := parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connections: %w", err)
	}
	if stats, ok := c.lister.(interface{ Stats() *capture.SnapshotStats }); ok {
		stats.Stats().AddRecords(len(records))
	}

	if err := tracker.Observe(ctx, records); err != nil {
		return nil, err
	}

	if len(records) == 0 {
		c.log.Debugf("Snapshot had no connections")
		return nil, nil
	}

	rep := Build(tracker, records)
	rep.ID = uuid.New().String()
	rep.Time = c.now()
	c.sink.Report(rep)
	return rep, nil
}

// Build joins records to the tracker's targets and groups them by owning pid.
// Records no target claims are left out of the groups. In discovery mode the
// totals still cover them; in named mode the totals cover the groups only.
// Groups are ordered by descending connection count, ties by first appearance.
func Build(tracker Tracker, records []models.ConnectionRecord) *models.Report {
	rep := &models.Report{
		Mode:    tracker.Mode(),
		Records: len(records),
	}

	index := make(map[int]int)
	for _, r := range records {
		if tracker.Mode() == models.ModeDiscovery {
			rep.Total.Add(r.State)
		}

		t, ok := tracker.Lookup(r.PID)
		if !ok {
			continue
		}
		if tracker.Mode() != models.ModeDiscovery {
			rep.Total.Add(r.State)
		}

		i, seen := index[r.PID]
		if !seen {
			i = len(rep.Groups)
			index[r.PID] = i
			rep.Groups = append(rep.Groups, models.Group{
				PID:       r.PID,
				Name:      t.Name,
				ShortName: t.ShortName,
			})
		}
		g := &rep.Groups[i]
		g.Counts.Add(r.State)
		g.Connections = append(g.Connections, r)
	}

	sort.SliceStable(rep.Groups, func(i, j int) bool {
		return len(rep.Groups[i].Connections) > len(rep.Groups[j].Connections)
	})
	return rep
}
