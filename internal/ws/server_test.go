package ws

import (
	"bytes"
	"testing"

	"github.com/RahulMahapatra3773/Vybe/internal/presence"
)

func newTestServer() *Server {
	return NewServer(DefaultServerConfig(), presence.NewRegistry(), nil)
}

func TestAttachPresenceIdentified(t *testing.T) {
	s := newTestServer()

	c := &Connection{ID: "c1", User: "u1", Conn: &recordingConn{}}
	s.attachPresence(c, "u1")

	if !s.registry.Online("u1") {
		t.Fatal("expected u1 to be registered as online")
	}
}

func TestAttachPresenceAnonymousGetsRoster(t *testing.T) {
	s := newTestServer()
	s.registry.Register("u1", &Connection{ID: "c1", Conn: &recordingConn{}})

	rc := &recordingConn{}
	c := &Connection{ID: "c2", Conn: rc}
	s.attachPresence(c, "")

	if !bytes.Contains(rc.bytes(), []byte(`"getOnlineUsers"`)) {
		t.Fatalf("expected a roster push, got %q", rc.bytes())
	}
	if !bytes.Contains(rc.bytes(), []byte(`"u1"`)) {
		t.Fatalf("expected the roster to list u1, got %q", rc.bytes())
	}
}

func TestAttachPresenceConflictDowngradesWithRoster(t *testing.T) {
	s := newTestServer()

	rc := &recordingConn{}
	c := &Connection{ID: "c1", User: "u2", Conn: rc}

	// The handle is already owned by u1, so registering it under u2 must be
	// rejected and the session continues anonymously.
	s.registry.Register("u1", c)
	s.attachPresence(c, "u2")

	if c.User != "" {
		t.Fatalf("expected downgrade to anonymous, got user %q", c.User)
	}
	if s.registry.Online("u2") {
		t.Fatal("expected u2 to stay offline after the rejected registration")
	}
	// A downgraded session still gets the current roster like any other
	// anonymous connection.
	if !bytes.Contains(rc.bytes(), []byte(`"getOnlineUsers"`)) {
		t.Fatalf("expected a roster push after downgrade, got %q", rc.bytes())
	}
}
