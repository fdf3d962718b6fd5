// Package store persists the terminal panel layout: which sessions exist,
// their titles, which one is active, and the panel's visibility flags.
//
// A Record is always written and read as a whole. Backends never merge.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidRecord is returned by Load when the stored layout cannot be
// decoded or fails validation. Callers treat it the same as "no record".
var ErrInvalidRecord = errors.New("store: invalid record")

// DefaultHeight is the panel height used when a record carries none.
const DefaultHeight = "400px"

// Tab is one persisted session. Hint is optional plain-text scrollback
// used to repaint the tab before its connection comes back.
type Tab struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Hint  string `json:"hint,omitempty"`
}

// Record is the complete persisted panel layout.
type Record struct {
	Visible   bool   `json:"visible"`
	Tabs      []Tab  `json:"tabs"`
	ActiveID  string `json:"activeId"`
	Height    string `json:"height"`
	Maximized bool   `json:"maximized"`
	Minimized bool   `json:"minimized"`
}

// Store loads and saves the panel layout. Load returns (nil, nil) when
// nothing has been saved yet.
type Store interface {
	Load() (*Record, error)
	Save(*Record) error
}

// Validate checks that every tab has a non-empty, unique id.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil", ErrInvalidRecord)
	}
	seen := make(map[string]bool, len(r.Tabs))
	for i, t := range r.Tabs {
		if t.ID == "" {
			return fmt.Errorf("%w: tab %d has no id", ErrInvalidRecord, i)
		}
		if seen[t.ID] {
			return fmt.Errorf("%w: duplicate tab id %q", ErrInvalidRecord, t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Tabs = append([]Tab(nil), r.Tabs...)
	return &c
}

// Encode serializes a record as indented JSON.
func Encode(r *Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// Decode parses and validates a serialized record.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.Height == "" {
		r.Height = DefaultHeight
	}
	return &r, nil
}
