package models

import (
	"fmt"
	"time"
)

// Mode says how the set of targets is chosen
type Mode string

const (
	// ModeDiscovery tracks every pid that shows up in the snapshot
	ModeDiscovery Mode = "discovery"
	// ModeNamed tracks the configured targets across restarts
	ModeNamed Mode = "named"
)

// Group is the report entry for one owning process
type Group struct {
	PID         int                `json:"pid"`
	Name        string             `json:"name"`
	ShortName   string             `json:"short_name"`
	Counts      StateCounts        `json:"counts"`
	Connections []ConnectionRecord `json:"connections"`
}

// Line renders the group's summary line
func (g Group) Line() string {
	return fmt.Sprintf("%d %s: %s", g.PID, g.Name, g.Counts)
}

// Report is the grouped result of one observation cycle
type Report struct {
	ID     string      `json:"id"`
	Time   time.Time   `json:"time"`
	Mode   Mode        `json:"mode"`
	Groups []Group     `json:"groups"`
	Total  StateCounts `json:"total"`

	// Records is the number of parsed records, including those no target claimed
	Records int `json:"records"`
}

// ShowTotal reports whether the aggregate line is part of the report
func (r *Report) ShowTotal() bool {
	return len(r.Groups) > 1
}

// Lines renders one line per group, then the totals when there is more than one group
func (r *Report) Lines() []string {
	lines := make([]string, 0, len(r.Groups)+1)
	for _, g := range r.Groups {
		lines = append(lines, g.Line())
	}
	if r.ShowTotal() {
		lines = append(lines, "Total: "+r.Total.String())
	}
	return lines
}
