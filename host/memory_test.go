package host

import "testing"

func TestMemoryPage_MissingTargets(t *testing.T) {
	p := NewMemoryPage()

	if p.Exists(SendButton) {
		t.Error("Exists on empty page")
	}
	if p.Click(SendButton) {
		t.Error("Click on empty page reported true")
	}
	if p.SetValue(PromptInput, "x") {
		t.Error("SetValue without input reported true")
	}
	if _, ok := p.Value(PromptInput); ok {
		t.Error("Value without input reported true")
	}
}

func TestMemoryPage_ClickHitsLastRendered(t *testing.T) {
	p := NewMemoryPage()
	p.Render(ReadAloud)
	p.Render(ReadAloud)
	p.Render(ReadAloud)

	got := -1
	p.OnClick(ReadAloud, func(i int) { got = i })

	if !p.Click(ReadAloud) {
		t.Fatal("Click reported false")
	}
	if got != 2 {
		t.Errorf("clicked index %d, want 2", got)
	}
	if p.Clicks(ReadAloud) != 1 {
		t.Errorf("Clicks = %d, want 1", p.Clicks(ReadAloud))
	}

	p.Remove(ReadAloud)
	if p.Exists(ReadAloud) {
		t.Error("element still exists after Remove")
	}
}

func TestMemoryPage_Values(t *testing.T) {
	p := NewMemoryPage()
	p.Render(PromptInput)

	if !p.SetValue(PromptInput, "hello") {
		t.Fatal("SetValue reported false")
	}
	if v, _ := p.Value(PromptInput); v != "hello" {
		t.Errorf("Value = %q, want hello", v)
	}
}
