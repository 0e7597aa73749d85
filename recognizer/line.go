package recognizer

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
)

var errAlreadyStarted = errors.New("recognition already started")

// Line is a capability that treats each non-empty input line as one finalized
// utterance. It stands in for a microphone in terminals and tests.
//
// A line may list ranked hypotheses separated by "|", best first. At most
// Settings.MaxAlternatives of them are reported when that is positive. The
// language setting is ignored.
type Line struct {
	lines chan string

	mu        sync.Mutex
	settings  Settings
	onResult  func([]Result)
	onEnd     func()
	running   bool
	exhausted bool
	stop      chan struct{}
}

// NewLine creates a line capability reading from r until EOF.
func NewLine(r io.Reader) *Line {
	l := &Line{lines: make(chan string)}
	go l.pump(r)
	return l
}

func (l *Line) pump(r io.Reader) {
	defer close(l.lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		l.lines <- text
	}
}

// Name implements Capability.
func (l *Line) Name() string { return "line" }

// Configure implements Capability.
func (l *Line) Configure(s Settings) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settings = s
}

// OnResult implements Capability.
func (l *Line) OnResult(fn func([]Result)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onResult = fn
}

// OnEnd implements Capability.
func (l *Line) OnEnd(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onEnd = fn
}

// Start implements Capability. It returns io.EOF once the input is exhausted.
func (l *Line) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.exhausted {
		return io.EOF
	}
	if l.running {
		return errAlreadyStarted
	}
	l.running = true
	l.stop = make(chan struct{})
	go l.session(l.stop)
	return nil
}

// Abort implements Capability.
func (l *Line) Abort() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		close(l.stop)
		l.running = false
	}
}

// Close implements Capability.
func (l *Line) Close() error {
	l.Abort()
	return nil
}

func (l *Line) session(stop chan struct{}) {
	var results []Result
	for {
		select {
		case <-stop:
			l.end(stop, false)
			return
		case text, ok := <-l.lines:
			if !ok {
				l.end(stop, true)
				return
			}
			l.mu.Lock()
			fn := l.onResult
			limit := l.settings.MaxAlternatives
			l.mu.Unlock()

			results = append(results, Result{
				Alternatives: alternatives(text, limit),
				IsFinal:      true,
			})
			if fn != nil {
				batch := make([]Result, len(results))
				copy(batch, results)
				fn(batch)
			}
		}
	}
}

func (l *Line) end(stop chan struct{}, exhausted bool) {
	l.mu.Lock()
	if exhausted {
		l.exhausted = true
	}
	if l.stop == stop {
		l.running = false
	}
	fn := l.onEnd
	l.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// alternatives splits a "|"-separated line into at most limit hypotheses with
// falling confidence.
func alternatives(text string, limit int) []Alternative {
	var alts []Alternative
	for _, part := range strings.Split(text, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if limit > 0 && len(alts) == limit {
			break
		}
		alts = append(alts, Alternative{Transcript: part, Confidence: 1 / float64(len(alts)+1)})
	}
	if len(alts) == 0 {
		alts = append(alts, Alternative{Transcript: text, Confidence: 1})
	}
	return alts
}
