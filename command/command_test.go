package command

import (
	"slices"
	"testing"
)

func TestRule_Matches(t *testing.T) {
	nevermind := AnyOf([]string{"nevermind"}, []string{"never mind"})

	tests := []struct {
		name       string
		rule       Rule
		transcript string
		want       bool
	}{
		{"all keywords present", AllOf("stop", "listening"), "please stop listening now", true},
		{"one keyword missing", AllOf("stop", "listening"), "please stop", false},
		{"case sensitive", AllOf("stop"), "Stop", false},
		{"substring over-match", AllOf("listen"), "the listener", true},
		{"first alternative", nevermind, "oh nevermind", true},
		{"second alternative", nevermind, "I never mind about that", true},
		{"no alternative", nevermind, "I don't mind", false},
		{"alternative needs all keywords", AnyOf([]string{"add", "open files"}), "add the files", false},
		{"empty alternative matches anything", AllOf(), "whatever", true},
		{"no alternatives never match", AnyOf(), "whatever", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Matches(tt.transcript); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.transcript, got, tt.want)
			}
		})
	}
}

func TestTable_FirstMatchWins(t *testing.T) {
	table := NewTable(
		Command{Name: "STOP_LISTENING", Rule: AllOf("stop", "listening")},
		Command{Name: "STOP", Rule: AllOf("stop")},
		Command{Name: "LISTEN", Rule: AllOf("listen")},
	)

	tests := []struct {
		transcript string
		want       string
		wantOK     bool
	}{
		{"please stop listening now", "STOP_LISTENING", true},
		{"stop", "STOP", true},
		{"listen to me", "LISTEN", true},
		{"hello there", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			cmd, ok := table.Match(tt.transcript)
			if ok != tt.wantOK || cmd.Name != tt.want {
				t.Errorf("Match(%q) = %q, %v; want %q, %v", tt.transcript, cmd.Name, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTable_ReversedOrderShadowsCompound(t *testing.T) {
	table := NewTable(
		Command{Name: "STOP", Rule: AllOf("stop")},
		Command{Name: "STOP_LISTENING", Rule: AllOf("stop", "listening")},
	)
	cmd, _ := table.Match("please stop listening now")
	if cmd.Name != "STOP" {
		t.Errorf("Match() = %q, want STOP to shadow the compound command", cmd.Name)
	}
}

func TestNewTable_CopiesInput(t *testing.T) {
	cmds := []Command{{Name: "A", Rule: AllOf("a")}}
	table := NewTable(cmds...)
	cmds[0].Name = "B"
	if got := table.Names(); !slices.Equal(got, []string{"A"}) {
		t.Errorf("Names() = %v, want [A]", got)
	}
}

type fakeDictation struct {
	listening bool
	autoSend  bool
	buffer    []string
	submits   int
}

func (f *fakeDictation) Listening() bool { return f.listening }

func (f *fakeDictation) Dictate(text string) {
	f.buffer = append(f.buffer, text)
	if f.autoSend {
		f.submits++
	}
}

func TestDispatcher_Handle(t *testing.T) {
	tests := []struct {
		name        string
		listening   bool
		autoSend    bool
		transcript  string
		wantOutcome Outcome
		wantName    string
		wantBuffer  int
		wantSubmits int
		wantFired   int
	}{
		{
			name:        "command fires regardless of listening",
			transcript:  "stop",
			wantOutcome: Fired,
			wantName:    "STOP",
			wantFired:   1,
		},
		{
			name:        "command while listening is not dictated",
			listening:   true,
			autoSend:    true,
			transcript:  "stop",
			wantOutcome: Fired,
			wantName:    "STOP",
			wantFired:   1,
		},
		{
			name:        "unmatched while idle is dropped",
			transcript:  "hello world",
			wantOutcome: Dropped,
		},
		{
			name:        "unmatched while listening is dictated",
			listening:   true,
			transcript:  "hello world",
			wantOutcome: Dictated,
			wantBuffer:  1,
		},
		{
			name:        "dictation with auto send submits",
			listening:   true,
			autoSend:    true,
			transcript:  "hello world",
			wantOutcome: Dictated,
			wantBuffer:  1,
			wantSubmits: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fired := 0
			table := NewTable(Command{
				Name:   "STOP",
				Rule:   AllOf("stop"),
				Action: func(string) { fired++ },
			})
			d := &fakeDictation{listening: tt.listening, autoSend: tt.autoSend}

			outcome, name := NewDispatcher(table, d, nil, nil).Handle(tt.transcript)

			if outcome != tt.wantOutcome || name != tt.wantName {
				t.Errorf("Handle() = %v, %q; want %v, %q", outcome, name, tt.wantOutcome, tt.wantName)
			}
			if len(d.buffer) != tt.wantBuffer {
				t.Errorf("buffer appends = %d, want %d", len(d.buffer), tt.wantBuffer)
			}
			if d.submits != tt.wantSubmits {
				t.Errorf("submits = %d, want %d", d.submits, tt.wantSubmits)
			}
			if fired != tt.wantFired {
				t.Errorf("actions fired = %d, want %d", fired, tt.wantFired)
			}
		})
	}
}
