// Package procs queries the live process table.
package procs

import (
	"context"
	"strings"

	"github.com/iolloyd/netwatch/internal/models"
)

// Table is the live process table. Not finding a process is a normal outcome
// reported through the boolean or an empty slice, never as an error.
type Table interface {
	// Exists reports whether pid is a running process
	Exists(ctx context.Context, pid int) (bool, error)
	// FindByName returns every running process with the given name, in
	// enumeration order
	FindByName(ctx context.Context, name string) ([]models.Process, error)
	// Name returns the name of pid
	Name(ctx context.Context, pid int) (string, bool, error)
}

// System returns the process table of the running host
func System() Table {
	return newSystemTable()
}

// lister enumerates every process; both platform tables share the name logic
type lister interface {
	list(ctx context.Context) ([]models.Process, error)
}

func findByName(ctx context.Context, l lister, name string) ([]models.Process, error) {
	all, err := l.list(ctx)
	if err != nil {
		return nil, err
	}
	var matches []models.Process
	for _, p := range all {
		if matchName(p.Name, name) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

func nameOf(ctx context.Context, l lister, pid int) (string, bool, error) {
	all, err := l.list(ctx)
	if err != nil {
		return "", false, err
	}
	for _, p := range all {
		if p.PID == pid {
			return p.Name, true, nil
		}
	}
	return "", false, nil
}

// commLen is the kernel's limit on /proc/<pid>/comm
const commLen = 15

// matchName compares a process table entry with a requested name. An ".exe"
// suffix and letter case are ignored, as process names are on Windows; long
// requests also match a name the kernel truncated.
func matchName(actual, want string) bool {
	actual = trimExe(actual)
	want = trimExe(want)
	if strings.EqualFold(actual, want) {
		return true
	}
	return len(want) > commLen && len(actual) == commLen && strings.EqualFold(actual, want[:commLen])
}

func trimExe(name string) string {
	if len(name) > 4 && strings.EqualFold(name[len(name)-4:], ".exe") {
		return name[:len(name)-4]
	}
	return name
}
