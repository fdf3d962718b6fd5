package store

import "sync"

// Memory keeps the serialized record in memory. It round-trips through the
// same encoding as File so tests see the same decode behavior.
type Memory struct {
	mu    sync.Mutex
	data  []byte
	saves int
	err   error
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load() (*Record, error) {
	m.mu.Lock()
	data := m.data
	m.mu.Unlock()
	if data == nil {
		return nil, nil
	}
	return Decode(data)
}

func (m *Memory) Save(r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	data, err := Encode(r)
	if err != nil {
		return err
	}
	m.data = data
	m.saves++
	return nil
}

// SetRaw replaces the stored bytes, bypassing validation.
func (m *Memory) SetRaw(data []byte) {
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
}

// Raw returns the stored bytes.
func (m *Memory) Raw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// FailSaves makes every subsequent Save return err. Pass nil to clear.
func (m *Memory) FailSaves(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Saves reports how many saves succeeded.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
