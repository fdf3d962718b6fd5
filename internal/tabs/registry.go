// Package tabs owns the set of terminal sessions: their order, the active
// selection, panel presentation state, and persistence of all of it.
package tabs

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ehrlich-b/wingterm/internal/session"
	"github.com/ehrlich-b/wingterm/internal/store"
	"github.com/ehrlich-b/wingterm/internal/ws"
)

// Options configures a Registry. Store and Dialer are required.
type Options struct {
	Store  store.Store
	Dialer ws.Dialer
	Conn   ws.Options
	// NewDisplay builds the display for a session when it is first
	// materialized. Nil leaves sessions headless.
	NewDisplay func(id string) session.Display
	// NewID allocates session ids. Defaults to random UUIDs.
	NewID  func() string
	Logger *slog.Logger
}

// Tab describes one session for callers rendering a tab strip.
type Tab struct {
	ID       string
	Title    string
	State    ws.State
	Active   bool
	Inactive bool
}

// Registry is safe for concurrent use. Every mutation persists a full
// snapshot before returning; write failures are logged and the in-memory
// state is kept.
type Registry struct {
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	sessions  []*session.Session
	activeID  string
	visible   bool
	height    string
	maximized bool
	minimized bool
	onChange  []func()
}

// Open rehydrates a Registry from the store. An absent or unreadable record
// yields a single fresh session. Restored sessions stay cold except the
// active one, which is connected immediately.
func Open(opts Options) *Registry {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		opts:   opts,
		log:    log,
		height: store.DefaultHeight,
	}

	rec, err := opts.Store.Load()
	if err != nil {
		log.Warn("discarding saved tabs", "err", err)
		rec = nil
	}
	if rec == nil || len(rec.Tabs) == 0 {
		if rec != nil {
			r.applyPanel(rec)
		}
		r.CreateSession("")
		return r
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyPanel(rec)
	for _, t := range rec.Tabs {
		r.sessions = append(r.sessions, r.newSession(t.ID, t.Title, t.Hint))
	}
	r.activeID = rec.ActiveID
	if r.indexLocked(r.activeID) < 0 {
		r.activeID = r.sessions[0].ID()
	}
	r.materializeLocked(r.activeLocked())
	r.presentLocked()
	log.Info("restored tabs", "count", len(r.sessions), "active", r.activeID)
	return r
}

func (r *Registry) applyPanel(rec *store.Record) {
	r.visible = rec.Visible
	r.maximized = rec.Maximized
	r.minimized = rec.Minimized
	if rec.Height != "" {
		r.height = rec.Height
	}
}

func (r *Registry) newSession(id, title, hint string) *session.Session {
	return session.New(session.Config{
		ID:     id,
		Title:  title,
		Hint:   hint,
		Dialer: r.opts.Dialer,
		Conn:   r.opts.Conn,
		Logger: r.log,
	})
}

// CreateSession appends a new session, makes it active and connects it.
// An empty title becomes "Terminal N".
func (r *Registry) CreateSession(title string) string {
	r.mu.Lock()
	title = strings.TrimSpace(title)
	if title == "" {
		title = fmt.Sprintf("Terminal %d", len(r.sessions)+1)
	}
	s := r.newSession(r.opts.NewID(), title, "")
	r.sessions = append(r.sessions, s)
	r.activeID = s.ID()
	r.materializeLocked(s)
	r.presentLocked()
	r.persistLocked()
	r.mu.Unlock()

	r.log.Info("session created", "session", s.ID(), "title", title)
	r.changed()
	return s.ID()
}

// CloseSession disconnects and disposes a session and removes its tab. The
// last remaining tab cannot be closed. If the closed tab was active, the
// first remaining tab becomes active.
func (r *Registry) CloseSession(id string) error {
	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("close %s: %w", id, ErrUnknownSession)
	}
	if len(r.sessions) == 1 {
		r.mu.Unlock()
		return &LastSessionError{ID: id}
	}
	s := r.sessions[i]
	r.sessions = append(r.sessions[:i:i], r.sessions[i+1:]...)
	if err := s.Close(); err != nil {
		r.log.Debug("dispose display", "session", id, "err", err)
	}
	if r.activeID == id {
		r.activeID = r.sessions[0].ID()
		r.materializeLocked(r.sessions[0])
		r.presentLocked()
	}
	r.persistLocked()
	r.mu.Unlock()

	r.log.Info("session closed", "session", id)
	r.changed()
	return nil
}

// SwitchTo activates id. Unknown ids are ignored. A cold session is
// connected on first activation.
func (r *Registry) SwitchTo(id string) {
	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return
	}
	r.switchLocked(i)
	r.mu.Unlock()
	r.changed()
}

// SwitchBy moves the active selection delta tabs, wrapping around.
func (r *Registry) SwitchBy(delta int) {
	r.mu.Lock()
	n := len(r.sessions)
	if n == 0 {
		r.mu.Unlock()
		return
	}
	i := ((r.indexLocked(r.activeID)+delta)%n + n) % n
	r.switchLocked(i)
	r.mu.Unlock()
	r.changed()
}

// SwitchToIndex activates the i-th tab (0-based). Out of range is ignored.
func (r *Registry) SwitchToIndex(i int) {
	r.mu.Lock()
	if i < 0 || i >= len(r.sessions) {
		r.mu.Unlock()
		return
	}
	r.switchLocked(i)
	r.mu.Unlock()
	r.changed()
}

func (r *Registry) switchLocked(i int) {
	s := r.sessions[i]
	r.activeID = s.ID()
	r.materializeLocked(s)
	r.presentLocked()
	r.persistLocked()
}

// RenameSession changes a tab title. A blank title is ignored.
func (r *Registry) RenameSession(id, title string) error {
	title = strings.TrimSpace(title)
	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("rename %s: %w", id, ErrUnknownSession)
	}
	if title == "" {
		r.mu.Unlock()
		return nil
	}
	r.sessions[i].SetTitle(title)
	r.persistLocked()
	r.mu.Unlock()
	r.changed()
	return nil
}

// Reconnect drops and re-dials a session's connection.
func (r *Registry) Reconnect(id string) error {
	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("reconnect %s: %w", id, ErrUnknownSession)
	}
	s := r.sessions[i]
	r.materializeLocked(s)
	r.mu.Unlock()

	s.Disconnect()
	s.Connect()
	r.changed()
	return nil
}

// SyncTitles applies titles from an externally written record to sessions
// present in both. Structure and selection are not merged. It reports
// whether anything changed.
func (r *Registry) SyncTitles(rec *store.Record) bool {
	if rec == nil {
		return false
	}
	r.mu.Lock()
	changed := false
	for _, t := range rec.Tabs {
		i := r.indexLocked(t.ID)
		title := strings.TrimSpace(t.Title)
		if i < 0 || title == "" || r.sessions[i].Title() == title {
			continue
		}
		r.sessions[i].SetTitle(title)
		changed = true
	}
	r.mu.Unlock()
	if changed {
		r.changed()
	}
	return changed
}

// Close persists a final snapshot and closes every session. The record
// keeps every tab so the next Open restores them.
func (r *Registry) Close() {
	r.mu.Lock()
	r.persistLocked()
	sessions := append([]*session.Session(nil), r.sessions...)
	r.mu.Unlock()
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			r.log.Debug("dispose display", "session", s.ID(), "err", err)
		}
	}
}

// OnChange registers fn to run after every mutation. Callbacks run without
// the registry lock held.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

func (r *Registry) changed() {
	r.mu.Lock()
	fns := append([]func(){}, r.onChange...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Tabs lists the sessions in display order.
func (r *Registry) Tabs() []Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	tabs := make([]Tab, len(r.sessions))
	for i, s := range r.sessions {
		tabs[i] = Tab{
			ID:       s.ID(),
			Title:    s.Title(),
			State:    s.State(),
			Active:   s.ID() == r.activeID,
			Inactive: s.Inactive(),
		}
	}
	return tabs
}

// IDs returns the session ids in display order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.sessions))
	for i, s := range r.sessions {
		ids[i] = s.ID()
	}
	return ids
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// Active returns the active session.
func (r *Registry) Active() *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked()
}

// Session returns the session with id, or nil.
func (r *Registry) Session(id string) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.sessions[i]
	}
	return nil
}

// Snapshot returns the record that would be persisted now.
func (r *Registry) Snapshot() *store.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) activeLocked() *session.Session {
	if i := r.indexLocked(r.activeID); i >= 0 {
		return r.sessions[i]
	}
	return nil
}

func (r *Registry) indexLocked(id string) int {
	for i, s := range r.sessions {
		if s.ID() == id {
			return i
		}
	}
	return -1
}

// materializeLocked gives s a display and starts its connection. Both are
// no-ops once done.
func (r *Registry) materializeLocked(s *session.Session) {
	if s == nil {
		return
	}
	if s.Display() == nil && r.opts.NewDisplay != nil {
		s.AttachDisplay(r.opts.NewDisplay(s.ID()))
	}
	if !s.Materialized() {
		s.Connect()
	}
}

// presentLocked shows the active display when the panel is on screen and
// hides every other one.
func (r *Registry) presentLocked() {
	onScreen := r.visible && !r.minimized
	for _, s := range r.sessions {
		vp, ok := s.Display().(session.Viewport)
		if !ok {
			continue
		}
		if onScreen && s.ID() == r.activeID {
			vp.Show()
			vp.Fit()
		} else {
			vp.Hide()
		}
	}
}

// fitAllLocked refits every materialized display after a geometry change.
func (r *Registry) fitAllLocked() {
	for _, s := range r.sessions {
		if vp, ok := s.Display().(session.Viewport); ok {
			vp.Fit()
		}
	}
}

func (r *Registry) snapshotLocked() *store.Record {
	rec := &store.Record{
		Visible:   r.visible,
		ActiveID:  r.activeID,
		Height:    r.height,
		Maximized: r.maximized,
		Minimized: r.minimized,
		Tabs:      make([]store.Tab, len(r.sessions)),
	}
	for i, s := range r.sessions {
		rec.Tabs[i] = store.Tab{ID: s.ID(), Title: s.Title(), Hint: s.ScrollbackHint()}
	}
	return rec
}

func (r *Registry) persistLocked() {
	if err := r.opts.Store.Save(r.snapshotLocked()); err != nil {
		r.log.Warn("save tabs failed", "err", err)
	}
}
