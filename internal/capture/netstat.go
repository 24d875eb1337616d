package capture

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/iolloyd/netwatch/internal/logging"
	"github.com/iolloyd/netwatch/internal/models"
	"github.com/iolloyd/netwatch/internal/parser"
)

// Query selects what a listing should contain
type Query struct {
	// Protocol narrows the listing; nil lists every protocol
	Protocol *models.Protocol
	// AllStates includes non-listening connections
	AllStates bool
	// PIDs narrows the listing to lines naming one of these pids
	PIDs []int
}

// Lister produces the raw text of one connection listing
type Lister interface {
	List(ctx context.Context, q Query) (string, error)
}

// RunFunc executes the listing command with args and returns its stdout
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Netstat runs `netstat -no[a] [-p PROTO]` and narrows its output to the
// requested pids the way a findstr pipe would.
type Netstat struct {
	path  string
	run   RunFunc
	stats *SnapshotStats
	log   *logging.Logger
}

// NewNetstat creates a lister for the netstat binary at path
func NewNetstat(path string, log *logging.Logger) *Netstat {
	return NewNetstatWithRunner(path, execRun, log)
}

// NewNetstatWithRunner creates a lister around an arbitrary command runner
func NewNetstatWithRunner(path string, run RunFunc, log *logging.Logger) *Netstat {
	return &Netstat{
		path:  path,
		run:   run,
		stats: NewSnapshotStats(),
		log:   log,
	}
}

// Args builds the netstat arguments for q
func Args(q Query) []string {
	flags := "-no"
	if q.AllStates {
		flags += "a"
	}
	args := []string{flags}
	if q.Protocol != nil {
		args = append(args, "-p", q.Protocol.String())
	}
	return args
}

func (n *Netstat) List(ctx context.Context, q Query) (string, error) {
	args := Args(q)
	n.log.Debugf("Running %s %s", n.path, strings.Join(args, " "))

	out, err := n.run(ctx, n.path, args...)
	if err != nil {
		n.stats.IncrementFailures()
		return "", fmt.Errorf("failed to run %s: %w", n.path, err)
	}
	n.stats.IncrementSnapshots()
	n.stats.IncrementBytes(uint64(len(out)))
	n.stats.UpdateLastSnapshotTime()

	if len(q.PIDs) == 0 {
		return string(out), nil
	}
	keywords := make([]string, len(q.PIDs))
	for i, pid := range q.PIDs {
		keywords[i] = strconv.Itoa(pid)
	}
	return parser.FilterLines(string(out), keywords), nil
}

// Stats returns the lister's snapshot counters
func (n *Netstat) Stats() *SnapshotStats {
	return n.stats
}
