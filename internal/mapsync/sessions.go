package mapsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"backend-alluviamaps/internal/shared/geo"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("map session not found")

// Client message types accepted on a session's stream.
const (
	MessageStyleLoaded = "style.loaded"
	MessageViewport    = "viewport"
)

// Session pairs a controller with the style document its browser renders.
type Session struct {
	ID         string
	Controller *Controller
	CreatedAt  time.Time

	mu      sync.Mutex
	surface *StyleSurface
}

// Surface returns the session's current style surface. It changes when the
// controller is re-initialised.
func (s *Session) Surface() *StyleSurface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface
}

func (s *Session) setSurface(surface *StyleSurface) {
	s.mu.Lock()
	s.surface = surface
	s.mu.Unlock()
}

type Sessions struct {
	pub      Publisher
	defaults MapOptions
	log      *slog.Logger

	mu    sync.RWMutex
	items map[string]*Session
}

func NewSessions(pub Publisher, defaults MapOptions, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		pub:      pub,
		defaults: defaults,
		log:      logger,
		items:    map[string]*Session{},
	}
}

// Open creates a session and initialises its controller with the default
// map options. The session is registered even if Init fails so the caller
// can inspect its state; the error is returned alongside it.
func (m *Sessions) Open() (*Session, error) {
	id := uuid.NewString()
	sess := &Session{ID: id, CreatedAt: time.Now().UTC()}

	factory := StyleSurfaceFactory(id, m.pub, m.log, sess.setSurface)
	sess.Controller = NewController(factory, m.log.With("session", id))

	m.mu.Lock()
	m.items[id] = sess
	m.mu.Unlock()

	if err := sess.Controller.Init(m.defaults); err != nil {
		return sess, err
	}
	m.log.Info("map session opened", "session", id)
	return sess, nil
}

func (m *Sessions) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.items[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Close tears the session down and forgets it.
func (m *Sessions) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.items[id]
	delete(m.items, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.Controller.Teardown()
	m.log.Info("map session closed", "session", id)
	return nil
}

// CloseAll tears down every open session.
func (m *Sessions) CloseAll() {
	m.mu.Lock()
	items := m.items
	m.items = map[string]*Session{}
	m.mu.Unlock()
	for _, sess := range items {
		sess.Controller.Teardown()
	}
}

func (m *Sessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// MarkStyleLoaded signals that the browser finished loading the session's
// base style.
func (m *Sessions) MarkStyleLoaded(id string) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	if surface := sess.Surface(); surface != nil {
		surface.MarkStyleLoaded()
	}
	return nil
}

type clientMessage struct {
	Type   string      `json:"type"`
	Bounds *geo.Bounds `json:"bounds,omitempty"`
}

// HandleClientMessage applies a message sent by the session's browser.
// Unknown message types are ignored.
func (m *Sessions) HandleClientMessage(id string, raw []byte) error {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode client message: %w", err)
	}
	switch msg.Type {
	case MessageStyleLoaded:
		return m.MarkStyleLoaded(id)
	case MessageViewport:
		if msg.Bounds == nil {
			return errors.New("viewport message without bounds")
		}
		sess, err := m.Get(id)
		if err != nil {
			return err
		}
		if surface := sess.Surface(); surface != nil {
			surface.SetViewport(*msg.Bounds)
		}
		return nil
	default:
		m.log.Debug("ignoring client message", "session", id, "type", msg.Type)
		return nil
	}
}

// OnClientMessage is HandleClientMessage shaped for the stream hub; failures
// are logged.
func (m *Sessions) OnClientMessage(id string, raw []byte) {
	if err := m.HandleClientMessage(id, raw); err != nil {
		m.log.Warn("client message rejected", "session", id, "err", err)
	}
}
