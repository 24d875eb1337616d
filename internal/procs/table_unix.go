//go:build !windows

package procs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/iolloyd/netwatch/internal/models"
)

type unixTable struct {
	procRoot string
}

func newSystemTable() Table {
	return &unixTable{procRoot: "/proc"}
}

// Exists probes pid with signal 0. EPERM still means the process exists.
func (t *unixTable) Exists(ctx context.Context, pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	err := unix.Kill(pid, 0)
	switch {
	case err == nil, errors.Is(err, unix.EPERM):
		return true, nil
	case errors.Is(err, unix.ESRCH):
		return false, nil
	default:
		return false, fmt.Errorf("failed to probe pid %d: %w", pid, err)
	}
}

func (t *unixTable) FindByName(ctx context.Context, name string) ([]models.Process, error) {
	return findByName(ctx, t, name)
}

func (t *unixTable) Name(ctx context.Context, pid int) (string, bool, error) {
	comm, err := os.ReadFile(filepath.Join(t.procRoot, strconv.Itoa(pid), "comm"))
	if err == nil {
		return strings.TrimSpace(string(comm)), true, nil
	}
	if _, statErr := os.Stat(t.procRoot); statErr == nil {
		return "", false, nil
	}
	return nameOf(ctx, t, pid)
}

func (t *unixTable) list(ctx context.Context) ([]models.Process, error) {
	entries, err := os.ReadDir(t.procRoot)
	if err != nil {
		return listPS(ctx)
	}

	var processes []models.Process
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		comm, err := os.ReadFile(filepath.Join(t.procRoot, e.Name(), "comm"))
		if err != nil {
			// exited while we were scanning
			continue
		}
		processes = append(processes, models.Process{PID: pid, Name: strings.TrimSpace(string(comm))})
	}
	return processes, nil
}

// listPS covers unix systems without procfs
func listPS(ctx context.Context) ([]models.Process, error) {
	out, err := exec.CommandContext(ctx, "ps", "-axo", "pid=,comm=").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var processes []models.Process
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		processes = append(processes, models.Process{
			PID:  pid,
			Name: filepath.Base(strings.Join(fields[1:], " ")),
		})
	}
	return processes, scanner.Err()
}
