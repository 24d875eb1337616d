package report

import (
	"fmt"
	"strings"

	"github.com/iolloyd/netwatch/internal/logging"
	"github.com/iolloyd/netwatch/internal/models"
)

// LogSink writes reports and records as log lines
type LogSink struct {
	log *logging.Logger
}

func NewLogSink(log *logging.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Report(r *models.Report) {
	s.log.Infof("%s", r.Time.Format("15:04:05\t(02/01)"))
	for _, g := range r.Groups {
		if s.log.Verbose() {
			s.log.Debugf("%s", connectionLines(g))
		}
		s.log.Infof("%s", g.Line())
	}
	if r.ShowTotal() {
		s.log.Infof("Total: %s", r.Total)
	}
}

func connectionLines(g models.Group) string {
	lines := make([]string, len(g.Connections))
	for i, c := range g.Connections {
		remote := "*:*"
		if c.HasRemote {
			remote = c.Remote.String()
		}
		lines[i] = fmt.Sprintf("%s %s  %s  %s  %s %d", c.Protocol, c.Local, remote, c.State, g.ShortName, c.PID)
	}
	return strings.Join(lines, "\n")
}

func (s *LogSink) Change(c models.Change) {
	s.log.Infof("%s", c)
}

func (s *LogSink) Diagnostic(d models.Diagnostic) {
	switch d.Level {
	case models.DiagnosticWarning:
		s.log.Warnf("%s", d.Message)
	default:
		s.log.Infof("%s", d.Message)
	}
}
