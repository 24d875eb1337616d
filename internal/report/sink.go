// Package report delivers cycle reports, identity changes and diagnostics to
// their consumers.
package report

import (
	"github.com/iolloyd/netwatch/internal/models"
)

// Sink consumes everything an observation cycle produces
type Sink interface {
	Report(r *models.Report)
	Change(c models.Change)
	Diagnostic(d models.Diagnostic)
}

// Fanout delivers to every sink in order
type Fanout []Sink

func (f Fanout) Report(r *models.Report) {
	for _, s := range f {
		s.Report(r)
	}
}

func (f Fanout) Change(c models.Change) {
	for _, s := range f {
		s.Change(c)
	}
}

func (f Fanout) Diagnostic(d models.Diagnostic) {
	for _, s := range f {
		s.Diagnostic(d)
	}
}

// Recorder keeps everything it receives, for tests and the health endpoint
type Recorder struct {
	Reports     []*models.Report
	Changes     []models.Change
	Diagnostics []models.Diagnostic
}

func (r *Recorder) Report(rep *models.Report) {
	r.Reports = append(r.Reports, rep)
}

func (r *Recorder) Change(c models.Change) {
	r.Changes = append(r.Changes, c)
}

func (r *Recorder) Diagnostic(d models.Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, d)
}
