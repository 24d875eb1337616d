// Package hosting looks up the worker process currently serving a named
// hosting slot (an IIS application pool).
package hosting

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Registry maps a hosting-slot name to its current worker pid
type Registry interface {
	FindPID(ctx context.Context, slot string) (int, bool, error)
}

// Invalidator is implemented by registries that cache their listing
type Invalidator interface {
	Invalidate()
}

// None is the registry of a host without worker-process slots
type None struct{}

func (None) FindPID(context.Context, string) (int, bool, error) {
	return 0, false, nil
}

// WorkerProcess is one entry of the worker-process listing
type WorkerProcess struct {
	PID  int
	Slot string
}

var workerRe = regexp.MustCompile(`^\s*WP\s+"(\d+)"\s+\(applicationPool:(.*)\)\s*$`)

// ParseWorkerProcesses reads `appcmd list wp` output
func ParseWorkerProcesses(raw string) []WorkerProcess {
	var wps []WorkerProcess
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		m := workerRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		pid, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		wps = append(wps, WorkerProcess{PID: pid, Slot: m[2]})
	}
	return wps
}

// DefaultAppCmdPath is where IIS installs appcmd
var DefaultAppCmdPath = filepath.Join(`C:\Windows`, "System32", "inetsrv", "appcmd.exe")

// RunFunc runs the worker-process listing and returns its output
type RunFunc func(ctx context.Context) (string, error)

// AppCmd queries IIS through appcmd. The listing is cached for ttl so a single
// reconciliation tick runs the command at most once.
type AppCmd struct {
	run RunFunc
	ttl time.Duration

	mu       sync.Mutex
	cached   []WorkerProcess
	cachedAt time.Time
}

// NewAppCmd creates a registry backed by the appcmd binary at path
func NewAppCmd(path string, ttl time.Duration) *AppCmd {
	return NewAppCmdWithRunner(func(ctx context.Context) (string, error) {
		out, err := exec.CommandContext(ctx, path, "list", "wp").Output()
		if err != nil {
			return "", fmt.Errorf("failed to run %s list wp: %w", path, err)
		}
		return string(out), nil
	}, ttl)
}

// NewAppCmdWithRunner creates a registry around an arbitrary listing function
func NewAppCmdWithRunner(run RunFunc, ttl time.Duration) *AppCmd {
	return &AppCmd{run: run, ttl: ttl}
}

// FindPID returns the pid of the first worker process serving slot. Slot
// names are compared exactly.
func (a *AppCmd) FindPID(ctx context.Context, slot string) (int, bool, error) {
	wps, err := a.workers(ctx)
	if err != nil {
		return 0, false, err
	}
	for _, wp := range wps {
		if wp.Slot == slot {
			return wp.PID, true, nil
		}
	}
	return 0, false, nil
}

func (a *AppCmd) workers(ctx context.Context) ([]WorkerProcess, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.cachedAt.IsZero() && time.Since(a.cachedAt) < a.ttl {
		return a.cached, nil
	}

	out, err := a.run(ctx)
	if err != nil {
		return nil, err
	}
	a.cached = ParseWorkerProcesses(out)
	a.cachedAt = time.Now()
	return a.cached, nil
}

// Invalidate drops the cached listing
func (a *AppCmd) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cached = nil
	a.cachedAt = time.Time{}
}

// Available reports whether an appcmd binary exists at path
func Available(path string) bool {
	_, err := exec.LookPath(path)
	return err == nil
}
