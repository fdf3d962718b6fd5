package display

// scrollback is a fixed-size ring of rendered lines that scrolled off the
// top of the screen. Not safe for concurrent use.
type scrollback struct {
	lines []string
	head  int // next write position
	n     int
}

func newScrollback(capacity int) *scrollback {
	return &scrollback{lines: make([]string, capacity)}
}

func (s *scrollback) push(line string) {
	s.lines[s.head] = line
	s.head = (s.head + 1) % len(s.lines)
	if s.n < len(s.lines) {
		s.n++
	}
}

func (s *scrollback) reset() {
	clear(s.lines)
	s.head = 0
	s.n = 0
}

func (s *scrollback) len() int { return s.n }

// tail returns up to max lines, oldest first. max <= 0 returns all.
func (s *scrollback) tail(max int) []string {
	n := s.n
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]string, n)
	start := (s.head - n + len(s.lines)) % len(s.lines)
	for i := range n {
		out[i] = s.lines[(start+i)%len(s.lines)]
	}
	return out
}
