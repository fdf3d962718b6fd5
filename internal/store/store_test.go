package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleRecord() *Record {
	return &Record{
		Visible: true,
		Tabs: []Tab{
			{ID: "a", Title: "Terminal 1"},
			{ID: "b", Title: "build", Hint: "$ make\r\nok\r\n"},
			{ID: "c", Title: "Terminal 3"},
		},
		ActiveID:  "b",
		Height:    "320px",
		Maximized: false,
		Minimized: true,
	}
}

func checkRecord(t *testing.T, got, want *Record) {
	t.Helper()
	if got == nil {
		t.Fatal("got nil record")
	}
	if got.Visible != want.Visible || got.ActiveID != want.ActiveID || got.Height != want.Height ||
		got.Maximized != want.Maximized || got.Minimized != want.Minimized {
		t.Errorf("panel = %+v, want %+v", got, want)
	}
	if len(got.Tabs) != len(want.Tabs) {
		t.Fatalf("tabs = %d, want %d", len(got.Tabs), len(want.Tabs))
	}
	for i := range want.Tabs {
		if got.Tabs[i] != want.Tabs[i] {
			t.Errorf("tab %d = %+v, want %+v", i, got.Tabs[i], want.Tabs[i])
		}
	}
}

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func backends(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemory(),
		"file":   NewFile(filepath.Join(t.TempDir(), "panel.json")),
		"sqlite": openTestSQLite(t),
	}
}

func TestLoadEmpty(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r, err := s.Load()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if r != nil {
				t.Errorf("load = %+v, want nil", r)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := sampleRecord()
			if err := s.Save(want); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := s.Load()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			checkRecord(t, got, want)
		})
	}
}

func TestSaveReplacesWholeRecord(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Save(sampleRecord()); err != nil {
				t.Fatalf("save: %v", err)
			}
			want := &Record{Tabs: []Tab{{ID: "c", Title: "Terminal 3"}}, ActiveID: "c", Height: "400px"}
			if err := s.Save(want); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := s.Load()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			checkRecord(t, got, want)
		})
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dup := &Record{Tabs: []Tab{{ID: "a"}, {ID: "a"}}}
			if err := s.Save(dup); !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("save duplicate = %v, want ErrInvalidRecord", err)
			}
			empty := &Record{Tabs: []Tab{{ID: ""}}}
			if err := s.Save(empty); !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("save empty id = %v, want ErrInvalidRecord", err)
			}
		})
	}
}

func TestLoadDefaultsHeight(t *testing.T) {
	m := NewMemory()
	m.SetRaw([]byte(`{"visible":true,"tabs":[{"id":"x","title":"t"}],"activeId":"x"}`))
	r, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if r.Height != DefaultHeight {
		t.Errorf("height = %q, want %q", r.Height, DefaultHeight)
	}
}

func TestLoadCorrupt(t *testing.T) {
	cases := map[string]string{
		"not json":     "{{{",
		"wrong shape":  `{"tabs":"nope"}`,
		"duplicate id": `{"tabs":[{"id":"a"},{"id":"a"}]}`,
		"missing id":   `{"tabs":[{"title":"x"}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			m := NewMemory()
			m.SetRaw([]byte(raw))
			if _, err := m.Load(); !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("load = %v, want ErrInvalidRecord", err)
			}
		})
	}
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.json")
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(path).Load(); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("load = %v, want ErrInvalidRecord", err)
	}
}

func TestFileSaveCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "panel.json")
	if err := NewFile(path).Save(sampleRecord()); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "panel.json" {
		t.Errorf("dir holds %v, want only panel.json", entries)
	}
}

func TestSQLiteMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Save(sampleRecord()); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	checkRecord(t, got, sampleRecord())
}

func TestMemoryFailSaves(t *testing.T) {
	m := NewMemory()
	boom := errors.New("disk full")
	m.FailSaves(boom)
	if err := m.Save(sampleRecord()); !errors.Is(err, boom) {
		t.Errorf("save = %v, want %v", err, boom)
	}
	m.FailSaves(nil)
	if err := m.Save(sampleRecord()); err != nil {
		t.Errorf("save: %v", err)
	}
	if m.Saves() != 1 {
		t.Errorf("saves = %d, want 1", m.Saves())
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.json")
	f := NewFile(path)
	if err := f.Save(sampleRecord()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fired := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func() { fired <- struct{}{} })
	}()

	// Give the watcher time to register before writing.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-fired:
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("watch: %v", err)
			}
			return
		case <-tick.C:
			r := sampleRecord()
			r.Tabs[0].Title = "renamed"
			if err := f.Save(r); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("watch never fired")
		}
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panel.json")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	fired := make(chan struct{}, 8)
	go Watch(ctx, path, func() { fired <- struct{}{} })

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fired:
		t.Fatal("watch fired for unrelated file")
	case <-ctx.Done():
	}
}
