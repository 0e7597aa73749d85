package recognizer

import (
	"fmt"
	"log/slog"
	"sync"
)

// Driver keeps a capability listening without gaps: every time recognition
// stops, the driver starts it again. Each finalized result is forwarded as the
// best alternative of the most recent result in the batch.
type Driver struct {
	capability   Capability
	lang         string
	onTranscript func(string)
	logger       *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewDriver creates a driver. A nil capability is a fatal startup error and
// yields ErrUnsupported.
func NewDriver(c Capability, lang string, onTranscript func(string), logger *slog.Logger) (*Driver, error) {
	if c == nil {
		return nil, ErrUnsupported
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		capability:   c,
		lang:         lang,
		onTranscript: onTranscript,
		logger:       logger.With("capability", c.Name()),
	}, nil
}

// Start configures the capability for continuous single-alternative
// recognition and begins listening.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("recognizer already started")
	}

	d.capability.Configure(Settings{
		Lang:            d.lang,
		Continuous:      true,
		InterimResults:  false,
		MaxAlternatives: 1,
	})
	d.capability.OnResult(d.handleResults)
	d.capability.OnEnd(d.restart)

	if err := d.capability.Start(); err != nil {
		return fmt.Errorf("start recognition: %w", err)
	}

	d.started = true
	d.logger.Info("recognizer started", "lang", d.lang)
	return nil
}

// Reset aborts the current recognition session. The end callback restarts it.
func (d *Driver) Reset() {
	d.mu.Lock()
	active := d.started && !d.stopped
	d.mu.Unlock()

	if active {
		d.capability.Abort()
	}
}

// Stop ends listening for good.
func (d *Driver) Stop() {
	d.mu.Lock()
	if d.stopped || !d.started {
		d.stopped = true
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	d.capability.Abort()
	d.logger.Info("recognizer stopped")
}

func (d *Driver) restart() {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return
	}

	if err := d.capability.Start(); err != nil {
		d.logger.Error("restart recognition", "error", err)
	}
}

func (d *Driver) handleResults(results []Result) {
	if len(results) == 0 {
		return
	}
	last := results[len(results)-1]
	if !last.IsFinal || len(last.Alternatives) == 0 {
		return
	}
	if d.onTranscript != nil {
		d.onTranscript(last.Alternatives[0].Transcript)
	}
}
