// Package procstest provides in-memory process tables and hosting registries
// for tests.
package procstest

import (
	"context"
	"sort"
	"sync"

	"github.com/iolloyd/netwatch/internal/models"
)

// Table is an in-memory procs.Table that counts its lookups
type Table struct {
	mu        sync.Mutex
	processes map[int]string
	order     []int

	ExistsCalls int
	NameCalls   int
	FindCalls   int
	Err         error
}

// NewTable creates a table from pid/name pairs
func NewTable(processes ...models.Process) *Table {
	t := &Table{processes: make(map[int]string)}
	for _, p := range processes {
		t.Start(p.PID, p.Name)
	}
	return t
}

// Start adds a running process
func (t *Table) Start(pid int, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.processes[pid]; !ok {
		t.order = append(t.order, pid)
	}
	t.processes[pid] = name
}

// Kill removes a process
func (t *Table) Kill(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.processes, pid)
	for i, p := range t.order {
		if p == pid {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Lookups returns the number of name-based lookups performed
func (t *Table) Lookups() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.FindCalls + t.NameCalls
}

func (t *Table) Exists(ctx context.Context, pid int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ExistsCalls++
	if t.Err != nil {
		return false, t.Err
	}
	_, ok := t.processes[pid]
	return ok, nil
}

// FindByName returns matches in insertion order
func (t *Table) FindByName(ctx context.Context, name string) ([]models.Process, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.FindCalls++
	if t.Err != nil {
		return nil, t.Err
	}
	var found []models.Process
	for _, pid := range t.order {
		if t.processes[pid] == name {
			found = append(found, models.Process{PID: pid, Name: name})
		}
	}
	return found, nil
}

func (t *Table) Name(ctx context.Context, pid int) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.NameCalls++
	if t.Err != nil {
		return "", false, t.Err
	}
	name, ok := t.processes[pid]
	return name, ok, nil
}

// PIDs returns the running pids in ascending order
func (t *Table) PIDs() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	pids := make([]int, 0, len(t.processes))
	for pid := range t.processes {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}

// Registry is an in-memory hosting.Registry
type Registry struct {
	mu    sync.Mutex
	slots map[string]int
	Calls int
	Err   error

	Invalidations int
}

// NewRegistry creates a registry from slot/pid pairs
func NewRegistry(slots map[string]int) *Registry {
	r := &Registry{slots: make(map[string]int)}
	for k, v := range slots {
		r.slots[k] = v
	}
	return r
}

// Set points slot at pid; pid 0 removes it
func (r *Registry) Set(slot string, pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pid == 0 {
		delete(r.slots, slot)
		return
	}
	r.slots[slot] = pid
}

func (r *Registry) FindPID(ctx context.Context, slot string) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if r.Err != nil {
		return 0, false, r.Err
	}
	pid, ok := r.slots[slot]
	return pid, ok, nil
}

func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Invalidations++
}
