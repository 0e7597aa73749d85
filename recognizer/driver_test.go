package recognizer

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeCapability records calls and lets tests fire callbacks.
type fakeCapability struct {
	mu       sync.Mutex
	settings Settings
	onResult func([]Result)
	onEnd    func()
	starts   int
	aborts   int
	startErr error
}

func (f *fakeCapability) Name() string               { return "fake" }
func (f *fakeCapability) Configure(s Settings)       { f.settings = s }
func (f *fakeCapability) OnResult(fn func([]Result)) { f.onResult = fn }
func (f *fakeCapability) OnEnd(fn func())            { f.onEnd = fn }
func (f *fakeCapability) Close() error               { return nil }

func (f *fakeCapability) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeCapability) Abort() {
	f.mu.Lock()
	f.aborts++
	f.mu.Unlock()
	f.onEnd()
}

func (f *fakeCapability) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func TestNewDriver_NoCapability(t *testing.T) {
	_, err := NewDriver(nil, "en-US", nil, nil)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("NewDriver(nil) = %v, want ErrUnsupported", err)
	}
}

func TestDriver_StartConfiguresContinuousRecognition(t *testing.T) {
	c := &fakeCapability{}
	d, err := NewDriver(c, "en-US", nil, nil)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	want := Settings{Lang: "en-US", Continuous: true, InterimResults: false, MaxAlternatives: 1}
	if c.settings != want {
		t.Errorf("settings = %+v, want %+v", c.settings, want)
	}
	if err := d.Start(); err == nil {
		t.Error("second Start should fail")
	}
}

func TestDriver_StartError(t *testing.T) {
	c := &fakeCapability{startErr: errors.New("denied")}
	d, _ := NewDriver(c, "en-US", nil, nil)
	if err := d.Start(); err == nil {
		t.Fatal("Start should surface the capability error")
	}
}

func TestDriver_RestartsOnEveryEnd(t *testing.T) {
	c := &fakeCapability{}
	d, _ := NewDriver(c, "en-US", nil, nil)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.onEnd()
	c.onEnd()
	d.Reset()

	if got := c.startCount(); got != 4 {
		t.Errorf("starts = %d, want 4", got)
	}

	d.Stop()
	c.onEnd()
	if got := c.startCount(); got != 4 {
		t.Errorf("restarted after Stop: starts = %d", got)
	}
}

func TestDriver_ForwardsBestAlternativeOfLastResult(t *testing.T) {
	var got []string
	c := &fakeCapability{}
	d, _ := NewDriver(c, "en-US", func(s string) { got = append(got, s) }, nil)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.onResult(nil)
	c.onResult([]Result{
		{Alternatives: []Alternative{{Transcript: "old"}}, IsFinal: true},
		{Alternatives: []Alternative{{Transcript: "best"}, {Transcript: "second"}}, IsFinal: true},
	})
	c.onResult([]Result{{Alternatives: []Alternative{{Transcript: "interim"}}}})
	c.onResult([]Result{{IsFinal: true}})

	if !slices.Equal(got, []string{"best"}) {
		t.Errorf("transcripts = %v, want [best]", got)
	}
}

func TestDriver_WithLineCapability(t *testing.T) {
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	line := NewLine(strings.NewReader("hello there\n\n  stop listening  \n"))
	d, err := NewDriver(line, "en-US", func(s string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s)
		if len(got) == 2 {
			close(done)
		}
	}, nil)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("transcripts not delivered")
	}
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(got, []string{"hello there", "stop listening"}) {
		t.Errorf("transcripts = %v", got)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Default(""); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Default on empty registry = %v, want ErrUnsupported", err)
	}

	a := &fakeCapability{}
	r.Register(a)
	r.Register(NewLine(strings.NewReader("")))

	c, err := r.Default("")
	if err != nil || c.Name() != "fake" {
		t.Fatalf("Default(\"\") = %v, %v; want fake", c, err)
	}
	c, err = r.Default("line")
	if err != nil || c.Name() != "line" {
		t.Fatalf("Default(line) = %v, %v", c, err)
	}
	if _, err := r.Default("webkit"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Default(webkit) = %v, want ErrUnsupported", err)
	}
	if len(r.List()) != 2 {
		t.Errorf("List() = %d entries, want 2", len(r.List()))
	}
}

func TestLine_Alternatives(t *testing.T) {
	tests := []struct {
		name  string
		input string
		limit int
		want  []string
	}{
		{"single", "send it", 0, []string{"send it"}},
		{"ranked", "send it | sending | sand it", 0, []string{"send it", "sending", "sand it"}},
		{"capped", "send it | sending | sand it", 2, []string{"send it", "sending"}},
		{"empty parts", "| listen |", 1, []string{"listen"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := NewLine(strings.NewReader(tt.input + "\n"))
			line.Configure(Settings{MaxAlternatives: tt.limit})

			got := make(chan []Result, 1)
			line.OnResult(func(r []Result) { got <- r })
			if err := line.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}
			defer line.Close()

			select {
			case results := <-got:
				var transcripts []string
				for _, a := range results[len(results)-1].Alternatives {
					transcripts = append(transcripts, a.Transcript)
				}
				if !slices.Equal(transcripts, tt.want) {
					t.Errorf("alternatives = %v, want %v", transcripts, tt.want)
				}
			case <-time.After(time.Second):
				t.Fatal("no result")
			}
		})
	}
}
