// Package registry implements the broker's session/pane registry: creation,
// lookup, listing, and teardown of Sessions and the Panes they own, plus the
// canonical input/output channel names a Pane exposes to the Channel
// Registry.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ptybroker/internal/namegen"
)

// ErrAlreadyExists is returned by CreateSession when an explicit name
// collides with an existing session.
var ErrAlreadyExists = errors.New("already exists")

// ErrNotFound is returned when a session or pane id doesn't resolve.
var ErrNotFound = errors.New("not found")

// maxIDBytes caps both session and pane identifiers so channel names
// derived from them stay short on the wire.
const maxIDBytes = 15

// Pane is a single terminal surface inside a Session. PaneID doubles as its
// human-readable name: it is either the caller's explicit name or a
// generated adjective-noun-digit string, both of which are already
// human-readable.
type Pane struct {
	ID        string
	Name      string
	SessionID string
	CreatedAt time.Time
}

// InputChannel is the canonical channel name carrying bytes to be written
// to the pane's Terminal Runtime.
func (p *Pane) InputChannel() string {
	return fmt.Sprintf("session-%s/pane-%s/input", p.SessionID, p.ID)
}

// OutputChannel is the canonical channel name carrying the pane's rendered
// output.
func (p *Pane) OutputChannel() string {
	return fmt.Sprintf("session-%s/pane-%s/output", p.SessionID, p.ID)
}

// Session is a named collection of Panes. Like Pane, SessionID doubles as
// its human-readable name.
type Session struct {
	ID        string
	Name      string
	CreatedAt time.Time
	panes     map[string]*Pane
	order     []string // pane creation order, for deterministic listing
}

// BroadcastChannel returns the session-wide input channel name. Neither the
// registry nor the broker copies messages published on it to the panes' own
// input channels.
func (s *Session) BroadcastChannel() string {
	return fmt.Sprintf("session-%s/input", s.ID)
}

// Registry owns every Session, keyed by id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string // session creation order
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// resolveID validates an explicit identifier against the byte cap and
// the "no slash or whitespace" constraint the channel name grammar
// relies on, or generates a fresh adjective-noun-digit one when explicit
// is empty.
func resolveID(explicit string, taken map[string]bool) (string, error) {
	if explicit != "" {
		if len(explicit) > maxIDBytes {
			return "", fmt.Errorf("registry: id %q exceeds %d bytes", explicit, maxIDBytes)
		}
		if strings.ContainsAny(explicit, "/ \t\r\n") {
			return "", fmt.Errorf("registry: id %q contains a slash or whitespace", explicit)
		}
		if taken[explicit] {
			return "", ErrAlreadyExists
		}
		return explicit, nil
	}
	return namegen.Generate(taken)
}

// CreateSession creates a new session. If name is non-empty it becomes the
// SessionId directly (and must not already be in use); otherwise a
// generated adjective-noun-digit id is used.
func (r *Registry) CreateSession(name string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	taken := make(map[string]bool, len(r.sessions))
	for id := range r.sessions {
		taken[id] = true
	}
	id, err := resolveID(name, taken)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:        id,
		Name:      id,
		CreatedAt: time.Now(),
		panes:     make(map[string]*Pane),
	}
	r.sessions[s.ID] = s
	r.order = append(r.order, s.ID)
	return s, nil
}

// CreatePane creates a new pane inside sessionID. Fails with ErrNotFound if
// the session doesn't exist. An explicit name becomes the PaneId directly;
// an empty name generates one.
func (r *Registry) CreatePane(sessionID, name string) (*Pane, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	taken := make(map[string]bool, len(s.panes))
	for id := range s.panes {
		taken[id] = true
	}
	id, err := resolveID(name, taken)
	if err != nil {
		return nil, err
	}

	p := &Pane{
		ID:        id,
		Name:      id,
		SessionID: sessionID,
		CreatedAt: time.Now(),
	}
	s.panes[p.ID] = p
	s.order = append(s.order, p.ID)
	return p, nil
}

// ListSessions returns every session id in creation order.
func (r *Registry) ListSessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ListPanes returns every pane id belonging to sessionID, in creation
// order. Fails with ErrNotFound if the session doesn't exist.
func (r *Registry) ListPanes(sessionID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

// GetSession looks up a session by id.
func (r *Registry) GetSession(sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// GetPane looks up a pane by session and pane id.
func (r *Registry) GetPane(sessionID, paneID string) (*Pane, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	p, ok := s.panes[paneID]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// ClosePaneFunc is invoked with the pane being removed so the caller can
// tear down its attached Terminal Runtime and canonical channels before the
// registry forgets about it.
type ClosePaneFunc func(*Pane)

// ClosePane removes paneID from sessionID, invoking onClose (if non-nil)
// with the Pane before it's forgotten.
func (r *Registry) ClosePane(sessionID, paneID string, onClose ClosePaneFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	p, ok := s.panes[paneID]
	if !ok {
		return ErrNotFound
	}
	if onClose != nil {
		onClose(p)
	}
	delete(s.panes, paneID)
	s.order = removeString(s.order, paneID)
	return nil
}

// CloseSession removes sessionID, invoking onClose for every pane it owned
// (in creation order) before the session itself is forgotten.
func (r *Registry) CloseSession(sessionID string, onClose ClosePaneFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if onClose != nil {
		for _, pid := range s.order {
			onClose(s.panes[pid])
		}
	}
	delete(r.sessions, sessionID)
	r.order = removeString(r.order, sessionID)
	return nil
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
