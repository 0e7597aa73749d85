package host

import "sync"

// MemoryPage is an in-process Page. Elements are counted per selector and
// clicks run registered hooks, which lets a caller script the page's reaction
// (a reply streaming, a read-aloud in progress).
type MemoryPage struct {
	mu       sync.Mutex
	elements map[Selector]int
	values   map[Selector]string
	hooks    map[Selector]func(index int)
	clicks   map[Selector]int
}

// NewMemoryPage returns an empty page.
func NewMemoryPage() *MemoryPage {
	return &MemoryPage{
		elements: make(map[Selector]int),
		values:   make(map[Selector]string),
		hooks:    make(map[Selector]func(int)),
		clicks:   make(map[Selector]int),
	}
}

// Render adds one element matching sel.
func (p *MemoryPage) Render(sel Selector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[sel]++
}

// Remove removes every element matching sel.
func (p *MemoryPage) Remove(sel Selector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, sel)
}

// OnClick registers fn to run when sel is clicked. fn receives the index of
// the clicked element and runs without the page lock held.
func (p *MemoryPage) OnClick(sel Selector, fn func(index int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks[sel] = fn
}

// Clicks returns how many times sel was clicked.
func (p *MemoryPage) Clicks(sel Selector) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clicks[sel]
}

// Exists implements Page.
func (p *MemoryPage) Exists(sel Selector) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elements[sel] > 0
}

// Click implements Page.
func (p *MemoryPage) Click(sel Selector) bool {
	p.mu.Lock()
	n := p.elements[sel]
	if n == 0 {
		p.mu.Unlock()
		return false
	}
	p.clicks[sel]++
	hook := p.hooks[sel]
	p.mu.Unlock()

	if hook != nil {
		hook(n - 1)
	}
	return true
}

// Value implements Page.
func (p *MemoryPage) Value(sel Selector) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.elements[sel] == 0 {
		return "", false
	}
	return p.values[sel], true
}

// SetValue implements Page.
func (p *MemoryPage) SetValue(sel Selector, text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.elements[sel] == 0 {
		return false
	}
	p.values[sel] = text
	return true
}
