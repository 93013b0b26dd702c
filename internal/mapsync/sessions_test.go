package mapsync

import (
	"errors"
	"testing"

	"backend-alluviamaps/internal/shared/geo"
)

func TestSessionsLifecycle(t *testing.T) {
	pub := &recordingPublisher{}
	sessions := NewSessions(pub, testOptions(), nil)

	sess, err := sessions.Open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if sess.ID == "" || sess.Surface() == nil {
		t.Fatalf("expected id and surface")
	}
	if sess.Controller.State() != StateStyleLoading {
		t.Fatalf("expected style_loading, got %s", sess.Controller.State())
	}
	if sessions.Len() != 1 {
		t.Fatalf("expected one session")
	}

	got, err := sessions.Get(sess.ID)
	if err != nil || got != sess {
		t.Fatalf("get: %v", err)
	}

	if err := sessions.MarkStyleLoaded(sess.ID); err != nil {
		t.Fatalf("mark loaded: %v", err)
	}
	if sess.Controller.State() != StateReady {
		t.Fatalf("expected ready")
	}

	if err := sessions.Close(sess.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sess.Controller.State() != StateTornDown {
		t.Fatalf("expected torn_down after close")
	}
	if _, err := sessions.Get(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := sessions.Close(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found on second close")
	}
}

func TestSessionsOpenWithoutToken(t *testing.T) {
	sessions := NewSessions(nil, DefaultMapOptions("", "style"), nil)
	sess, err := sessions.Open()
	if !errors.Is(err, ErrNoAccessToken) {
		t.Fatalf("expected ErrNoAccessToken, got %v", err)
	}
	if sess.Controller.State() != StateUninitialized {
		t.Fatalf("expected uninitialized")
	}
}

func TestSessionsClientMessages(t *testing.T) {
	sessions := NewSessions(nil, testOptions(), nil)
	sess, _ := sessions.Open()

	if err := sessions.HandleClientMessage(sess.ID, []byte(`{"type":"style.loaded"}`)); err != nil {
		t.Fatalf("style.loaded: %v", err)
	}
	if sess.Controller.State() != StateReady {
		t.Fatalf("expected ready after style.loaded")
	}

	msg := []byte(`{"type":"viewport","bounds":{"north":-36,"south":-37,"east":145,"west":144}}`)
	if err := sessions.HandleClientMessage(sess.ID, msg); err != nil {
		t.Fatalf("viewport: %v", err)
	}
	b, ok := sess.Controller.Bounds()
	if !ok || b != (geo.Bounds{North: -36, South: -37, East: 145, West: 144}) {
		t.Fatalf("unexpected bounds %+v", b)
	}

	if err := sessions.HandleClientMessage(sess.ID, []byte(`{"type":"viewport"}`)); err == nil {
		t.Fatalf("expected error for viewport without bounds")
	}
	if err := sessions.HandleClientMessage(sess.ID, []byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
	if err := sessions.HandleClientMessage(sess.ID, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("unknown types are ignored: %v", err)
	}
	if err := sessions.HandleClientMessage("missing", []byte(`{"type":"style.loaded"}`)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	sessions.OnClientMessage("missing", []byte(`{"type":"style.loaded"}`))
}

func TestSessionsCloseAll(t *testing.T) {
	sessions := NewSessions(nil, testOptions(), nil)
	a, _ := sessions.Open()
	b, _ := sessions.Open()
	sessions.CloseAll()

	if sessions.Len() != 0 {
		t.Fatalf("expected no sessions")
	}
	if a.Controller.State() != StateTornDown || b.Controller.State() != StateTornDown {
		t.Fatalf("expected every controller torn down")
	}
}
