package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// HostingKind classifies what a target descriptor names
type HostingKind int

const (
	// HostingUnknown tries a direct process lookup first, then the hosting-slot registry
	HostingUnknown HostingKind = iota
	// HostingSlot names a worker-process slot (an IIS application pool)
	HostingSlot
	// HostingDirect names a process
	HostingDirect
)

func (k HostingKind) String() string {
	switch k {
	case HostingSlot:
		return "slot"
	case HostingDirect:
		return "process"
	default:
		return "unknown"
	}
}

func (k HostingKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// ParseHostingKind accepts the names used in configuration and on the command line
func ParseHostingKind(s string) (HostingKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown", "auto":
		return HostingUnknown, nil
	case "slot", "apppool", "pool", "w3wp":
		return HostingSlot, nil
	case "process", "proc", "direct":
		return HostingDirect, nil
	}
	return HostingUnknown, fmt.Errorf("unknown hosting kind %q", s)
}

// Target is a logical process the reconciler keeps bound to a live pid
type Target struct {
	Name      string      `json:"name"`
	Kind      HostingKind `json:"kind"`
	PID       int         `json:"pid"`
	ShortName string      `json:"short_name"`
}

// NewTarget creates an unbound target for a configured descriptor
func NewTarget(name string, kind HostingKind) *Target {
	t := &Target{Name: name, Kind: kind}
	t.ShortName = ShortName(name, kind)
	return t
}

// NewProcessTarget creates a target already bound to pid
func NewProcessTarget(name string, pid int) *Target {
	t := NewTarget(name, HostingDirect)
	t.PID = pid
	return t
}

// Bound reports whether the target currently has a verified pid
func (t *Target) Bound() bool {
	return t.PID != 0
}

// Bind stores a resolved pid and the hosting kind the resolution settled on
func (t *Target) Bind(pid int, kind HostingKind) {
	t.PID = pid
	t.SetKind(kind)
}

// Unbind forgets the pid; the hosting kind is kept
func (t *Target) Unbind() {
	t.PID = 0
	t.ShortName = ShortName(t.Name, t.Kind)
}

// SetKind changes the hosting classification and refreshes the short name
func (t *Target) SetKind(kind HostingKind) {
	t.Kind = kind
	t.ShortName = ShortName(t.Name, kind)
}

// SetName changes the display name and refreshes the short name
func (t *Target) SetName(name string) {
	t.Name = name
	t.ShortName = ShortName(name, t.Kind)
}

// SameEntity reports whether two targets track the same process. Unbound
// targets are never the same entity.
func (t *Target) SameEntity(other *Target) bool {
	if t == nil || other == nil {
		return false
	}
	return t.PID != 0 && t.PID == other.PID
}

func (t *Target) String() string {
	return fmt.Sprintf("%s:\t PID %d", t.Name, t.PID)
}

// Process is one entry of the live process table
type Process struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// Change records a target's pid moving from OldPID to NewPID
type Change struct {
	Name   string `json:"name"`
	OldPID int    `json:"old_pid"`
	NewPID int    `json:"new_pid"`
}

func (c Change) String() string {
	if c.NewPID == 0 {
		return fmt.Sprintf("Process unknown: %s (old id: %d)", c.Name, c.OldPID)
	}
	return fmt.Sprintf("Process %s (old id: %d, new id: %d)", c.Name, c.OldPID, c.NewPID)
}

// DiagnosticLevel is the severity of a Diagnostic
type DiagnosticLevel string

const (
	DiagnosticInfo    DiagnosticLevel = "info"
	DiagnosticWarning DiagnosticLevel = "warning"
)

// Diagnostic is an observation that is worth reporting but is not an error
type Diagnostic struct {
	Level   DiagnosticLevel `json:"level"`
	Message string          `json:"message"`
	PIDs    []int           `json:"pids,omitempty"`
}

// AmbiguousName builds the warning emitted when several processes share a name
func AmbiguousName(name string, pids []int) Diagnostic {
	ids := make([]string, len(pids))
	for i, pid := range pids {
		ids[i] = fmt.Sprintf("%d", pid)
	}
	return Diagnostic{
		Level:   DiagnosticWarning,
		Message: fmt.Sprintf("Processes found for name '%s': %s. Ignore all but first.", name, strings.Join(ids, ", ")),
		PIDs:    append([]int(nil), pids...),
	}
}

// ResolvedBySlot builds the note emitted when a name matched no process but did
// match a hosting slot
func ResolvedBySlot(name string, pid int) Diagnostic {
	return Diagnostic{
		Level:   DiagnosticInfo,
		Message: fmt.Sprintf("No process named '%s'; using worker process %d of the application pool.", name, pid),
		PIDs:    []int{pid},
	}
}
