package notifier

import (
	"log/slog"
	"time"

	"github.com/amishk599/leadradar/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes run reports to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each report via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the tally of the run followed by one line per top lead.
// Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(r model.RunReport) error {
	n.logger.Info("run report",
		"pipeline", r.Pipeline,
		"run_id", r.RunID,
		"tally", r.Tally(),
		"skipped", r.Skipped,
		"tokens", r.Tokens,
		"duration", r.Duration().Round(time.Second).String(),
	)
	for i, l := range r.TopLeads {
		n.logger.Info("top lead",
			"rank", i+1,
			"company", l.Company,
			"title", l.Title,
			"score", l.Score,
			"recommendation", l.Recommendation,
		)
	}
	return nil
}
