package command

import (
	"log/slog"

	"go.aimuz.me/voicechat/metrics"
)

// Outcome is what a transcript turned into.
type Outcome int

const (
	// Dropped means no command matched and the engine was not listening.
	Dropped Outcome = iota
	// Fired means a command action ran.
	Fired
	// Dictated means the transcript was appended to the pending input.
	Dictated
)

func (o Outcome) String() string {
	switch o {
	case Fired:
		return metrics.OutcomeCommand
	case Dictated:
		return metrics.OutcomeDictation
	default:
		return metrics.OutcomeDropped
	}
}

// Dictation receives transcripts that matched no command.
type Dictation interface {
	// Listening reports whether unmatched transcripts are dictation.
	Listening() bool
	// Dictate appends text to the pending input, submitting when auto-send is on.
	Dictate(text string)
}

// Dispatcher routes transcripts to a command action or to dictation, never both.
type Dispatcher struct {
	table     *Table
	dictation Dictation
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewDispatcher creates a dispatcher. logger and m may be nil.
func NewDispatcher(table *Table, d Dictation, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{table: table, dictation: d, logger: logger, metrics: m}
}

// Handle processes one finalized transcript and returns its outcome and,
// when a command fired, its name.
func (d *Dispatcher) Handle(transcript string) (Outcome, string) {
	if cmd, ok := d.table.Match(transcript); ok {
		d.logger.Debug("command matched", "command", cmd.Name, "transcript", transcript)
		d.metrics.Command(cmd.Name)
		if cmd.Action != nil {
			cmd.Action(transcript)
		}
		return Fired, cmd.Name
	}

	if !d.dictation.Listening() {
		d.metrics.Transcript(metrics.OutcomeDropped)
		return Dropped, ""
	}

	d.dictation.Dictate(transcript)
	d.metrics.Transcript(metrics.OutcomeDictation)
	return Dictated, ""
}
