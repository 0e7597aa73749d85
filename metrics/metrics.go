// Package metrics provides Prometheus-based instrumentation for the voice
// command engine. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transcript outcomes.
const (
	OutcomeCommand   = "command"
	OutcomeDictation = "dictation"
	OutcomeDropped   = "dropped"
)

// Poll results.
const (
	PollDone     = "done"
	PollTimeout  = "timeout"
	PollInFlight = "in_flight"
	PollCanceled = "canceled"
)

// Metrics holds the collectors.
type Metrics struct {
	commandsTotal    *prometheus.CounterVec
	transcriptsTotal *prometheus.CounterVec
	broadcastsTotal  *prometheus.CounterVec
	droppedTotal     *prometheus.CounterVec
	pollsTotal       *prometheus.CounterVec
	pollDuration     *prometheus.HistogramVec
	snippetsTotal    prometheus.Counter
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		commandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicechat_commands_total",
				Help: "Voice commands fired, by command name",
			},
			[]string{"command"},
		),
		transcriptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicechat_transcripts_total",
				Help: "Finalized transcripts, by outcome",
			},
			[]string{"outcome"},
		),
		broadcastsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicechat_state_broadcasts_total",
				Help: "Full state records broadcast, by originating context",
			},
			[]string{"context"},
		),
		droppedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicechat_messages_dropped_total",
				Help: "Inbound messages dropped, by reason",
			},
			[]string{"reason"},
		),
		pollsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicechat_polls_total",
				Help: "Completion polls, by condition key and result",
			},
			[]string{"key", "result"},
		),
		pollDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicechat_poll_duration_seconds",
				Help:    "Time until a polled host condition was observed",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"key"},
		),
		snippetsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "voicechat_relay_snippets_total",
				Help: "Snippets relayed onto the realtime channel",
			},
		),
	}
}

// Command records a fired command.
func (m *Metrics) Command(name string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(name).Inc()
	m.transcriptsTotal.WithLabelValues(OutcomeCommand).Inc()
}

// Transcript records a transcript that did not fire a command.
func (m *Metrics) Transcript(outcome string) {
	if m == nil {
		return
	}
	m.transcriptsTotal.WithLabelValues(outcome).Inc()
}

// Broadcast records a state broadcast from the named context.
func (m *Metrics) Broadcast(context string) {
	if m == nil {
		return
	}
	m.broadcastsTotal.WithLabelValues(context).Inc()
}

// Dropped records an inbound message that was not dispatched.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(reason).Inc()
}

// Poll records the end of a completion poll.
func (m *Metrics) Poll(key, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.pollsTotal.WithLabelValues(key, result).Inc()
	if result == PollDone {
		m.pollDuration.WithLabelValues(key).Observe(elapsed.Seconds())
	}
}

// Snippet records a relayed snippet.
func (m *Metrics) Snippet() {
	if m == nil {
		return
	}
	m.snippetsTotal.Inc()
}
