package console

import "bytes"

// Prefix is the key that introduces a console command (Ctrl-]).
const Prefix = 0x1d

// ActionKind enumerates what a keystroke asks the console to do.
type ActionKind int

const (
	ActSend ActionKind = iota
	ActNew
	ActClose
	ActNext
	ActPrev
	ActSelect
	ActToggle
	ActDetach
)

// Action is one decoded console intent. Data is set for ActSend, Index
// (0-based) for ActSelect.
type Action struct {
	Kind  ActionKind
	Data  []byte
	Index int
}

// Keymap splits raw input into pass-through bytes and prefix commands.
// State persists across Feed calls so a prefix and its command may arrive
// in separate reads.
type Keymap struct {
	armed bool
}

func (k *Keymap) Feed(p []byte) []Action {
	var acts []Action
	var pending []byte
	flush := func() {
		if len(pending) > 0 {
			acts = append(acts, Action{Kind: ActSend, Data: bytes.Clone(pending)})
			pending = pending[:0]
		}
	}
	for _, b := range p {
		if !k.armed {
			if b == Prefix {
				k.armed = true
				continue
			}
			pending = append(pending, b)
			continue
		}
		k.armed = false
		switch {
		case b == Prefix:
			pending = append(pending, Prefix)
		case b == 'c':
			flush()
			acts = append(acts, Action{Kind: ActNew})
		case b == 'x':
			flush()
			acts = append(acts, Action{Kind: ActClose})
		case b == 'n':
			flush()
			acts = append(acts, Action{Kind: ActNext})
		case b == 'p':
			flush()
			acts = append(acts, Action{Kind: ActPrev})
		case b >= '1' && b <= '9':
			flush()
			acts = append(acts, Action{Kind: ActSelect, Index: int(b - '1')})
		case b == 'h':
			flush()
			acts = append(acts, Action{Kind: ActToggle})
		case b == 'd':
			flush()
			acts = append(acts, Action{Kind: ActDetach})
		}
		// Any other key after the prefix is swallowed.
	}
	flush()
	return acts
}
