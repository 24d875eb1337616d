//go:build windows

package procs

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/iolloyd/netwatch/internal/models"
)

const stillActive = 259

type windowsTable struct{}

func newSystemTable() Table {
	return windowsTable{}
}

func (t windowsTable) Exists(ctx context.Context, pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			return true, nil
		}
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open pid %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return true, nil
	}
	return code == stillActive, nil
}

func (t windowsTable) FindByName(ctx context.Context, name string) ([]models.Process, error) {
	return findByName(ctx, t, name)
}

func (t windowsTable) Name(ctx context.Context, pid int) (string, bool, error) {
	return nameOf(ctx, t, pid)
}

func (t windowsTable) list(ctx context.Context) ([]models.Process, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot processes: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var processes []models.Process
	for err = windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		processes = append(processes, models.Process{
			PID:  int(entry.ProcessID),
			Name: trimExe(windows.UTF16ToString(entry.ExeFile[:])),
		})
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("failed to walk process snapshot: %w", err)
	}
	return processes, nil
}
