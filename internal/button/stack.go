package button

import "sync"

// Stack is the navigation history of one device. The last panel is the
// visible screen. A Stack is never empty.
type Stack struct {
	mu     sync.Mutex
	panels []*Panel
}

// NewStack returns a stack holding root as its only panel.
func NewStack(root RawPanel) *Stack {
	return &Stack{panels: []*Panel{NewPanel(root)}}
}

// Top returns the visible panel.
func (s *Stack) Top() *Panel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panels[len(s.panels)-1]
}

// Root returns the bottom panel.
func (s *Stack) Root() *Panel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panels[0]
}

// Depth returns the number of panels.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.panels)
}

// Panels returns the panels bottom to top.
func (s *Stack) Panels() []*Panel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Panel(nil), s.panels...)
}

// Push makes p the visible panel.
func (s *Stack) Push(p *Panel) {
	s.mu.Lock()
	s.panels = append(s.panels, p)
	s.mu.Unlock()
}

// Pop removes the visible panel. At depth one it does nothing and
// returns false.
func (s *Stack) Pop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.panels) <= 1 {
		return false
	}
	s.panels[len(s.panels)-1] = nil
	s.panels = s.panels[:len(s.panels)-1]
	return true
}

// ForcePop removes the visible panel unconditionally. Popping the root
// leaves a blank root in its place.
func (s *Stack) ForcePop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.panels) <= 1 {
		s.panels[0] = NewPanel(NewRawPanel(""))
		return
	}
	s.panels[len(s.panels)-1] = nil
	s.panels = s.panels[:len(s.panels)-1]
}

// Replace swaps the visible panel for p.
func (s *Stack) Replace(p *Panel) {
	s.mu.Lock()
	s.panels[len(s.panels)-1] = p
	s.mu.Unlock()
}

// Reset discards all history and makes root the only panel.
func (s *Stack) Reset(root *Panel) {
	s.mu.Lock()
	s.panels = []*Panel{root}
	s.mu.Unlock()
}

// Snapshot returns the raw form of every panel, bottom to top.
func (s *Stack) Snapshot() []RawPanel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RawPanel, len(s.panels))
	for i, p := range s.panels {
		out[i] = p.Raw()
	}
	return out
}

// Commit runs the commit hooks from the top panel down so that nested
// edits propagate into the buttons that opened them, then returns the
// root panel's raw form.
func (s *Stack) Commit() RawPanel {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.panels) - 1; i > 0; i-- {
		p := s.panels[i]
		if hook := p.commitHook(); hook != nil {
			hook(p.Raw())
		}
	}
	return s.panels[0].Raw()
}
