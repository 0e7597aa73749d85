package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Command("STOP")
	m.Transcript(OutcomeDropped)
	m.Broadcast("agent")
	m.Dropped("unknown_event")
	m.Poll("speak", PollDone, time.Second)
	m.Snippet()
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Command("STOP")
	m.Command("STOP")
	m.Transcript(OutcomeDictation)
	m.Poll("speak", PollDone, 200*time.Millisecond)
	m.Poll("speak", PollTimeout, time.Minute)
	m.Snippet()

	if got := testutil.ToFloat64(m.commandsTotal.WithLabelValues("STOP")); got != 2 {
		t.Errorf("commands{STOP} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.transcriptsTotal.WithLabelValues(OutcomeCommand)); got != 2 {
		t.Errorf("transcripts{command} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.transcriptsTotal.WithLabelValues(OutcomeDictation)); got != 1 {
		t.Errorf("transcripts{dictation} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.pollsTotal.WithLabelValues("speak", PollTimeout)); got != 1 {
		t.Errorf("polls{speak,timeout} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.snippetsTotal); got != 1 {
		t.Errorf("snippets = %v, want 1", got)
	}
}
