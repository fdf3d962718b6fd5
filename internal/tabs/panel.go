package tabs

import "strings"

// SetVisible shows or hides the panel.
func (r *Registry) SetVisible(visible bool) {
	r.mu.Lock()
	r.setVisibleLocked(visible)
	r.mu.Unlock()
	r.changed()
}

func (r *Registry) setVisibleLocked(visible bool) {
	r.visible = visible
	if visible {
		r.minimized = false
		r.fitAllLocked()
	}
	r.presentLocked()
	r.persistLocked()
}

// Show puts the panel on screen, restoring it if minimized.
func (r *Registry) Show() { r.SetVisible(true) }

func (r *Registry) Hide() { r.SetVisible(false) }

func (r *Registry) Toggle() {
	r.mu.Lock()
	r.setVisibleLocked(!r.visible)
	r.mu.Unlock()
	r.changed()
}

// Minimize collapses the panel without hiding it. Show restores it.
func (r *Registry) Minimize() {
	r.mu.Lock()
	r.minimized = true
	r.presentLocked()
	r.persistLocked()
	r.mu.Unlock()
	r.changed()
}

// ToggleMaximize flips the maximized flag and refits every display.
func (r *Registry) ToggleMaximize() {
	r.mu.Lock()
	r.maximized = !r.maximized
	r.fitAllLocked()
	r.persistLocked()
	r.mu.Unlock()
	r.changed()
}

// SetHeight records the panel height, a CSS-style length such as "400px".
func (r *Registry) SetHeight(height string) {
	height = strings.TrimSpace(height)
	if height == "" {
		return
	}
	r.mu.Lock()
	r.height = height
	r.fitAllLocked()
	r.persistLocked()
	r.mu.Unlock()
	r.changed()
}

func (r *Registry) Visible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}

func (r *Registry) Maximized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maximized
}

func (r *Registry) Minimized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minimized
}

func (r *Registry) Height() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.height
}
