package router

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/RahulMahapatra3773/Vybe/internal/fanout"
	"github.com/RahulMahapatra3773/Vybe/internal/presence"
	"github.com/RahulMahapatra3773/Vybe/internal/protocol"
)

type fakeHandle struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (f *fakeHandle) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.msgs = append(f.msgs, cp)
	return nil
}

func (f *fakeHandle) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (b *fakeBroadcaster) Broadcast(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.msgs = append(b.msgs, cp)
}

func (b *fakeBroadcaster) last() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.msgs) == 0 {
		return nil
	}
	return b.msgs[len(b.msgs)-1]
}

func newTestRouter() (*Router, *presence.Registry) {
	reg := presence.NewRegistry()
	return New(reg, fanout.New(reg)), reg
}

func TestRouteTyping(t *testing.T) {
	rt, reg := newTestRouter()

	receiver := &fakeHandle{}
	reg.Register("u2", receiver)

	rt.RouteTyping("u1", "u2")

	msgs := receiver.received()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 typing event, got %d", len(msgs))
	}
	var decoded struct {
		Type     string `json:"type"`
		SenderID string `json:"senderId"`
	}
	if err := json.Unmarshal(msgs[0], &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != protocol.TypeTyping {
		t.Errorf("expected type %q, got %q", protocol.TypeTyping, decoded.Type)
	}
	if decoded.SenderID != "u1" {
		t.Errorf("expected senderId u1, got %q", decoded.SenderID)
	}
}

func TestRouteTypingOfflineReceiver(t *testing.T) {
	rt, reg := newTestRouter()

	receiver := &fakeHandle{}
	reg.Register("u2", receiver)
	reg.Deregister("u2", receiver)

	// Receiver disconnected between two keystrokes: nothing is delivered and
	// nothing panics.
	rt.RouteTyping("u1", "u2")

	if len(receiver.received()) != 0 {
		t.Fatalf("expected no events after disconnect, got %d", len(receiver.received()))
	}
}

func TestRouteStopTyping(t *testing.T) {
	rt, reg := newTestRouter()

	receiver := &fakeHandle{}
	reg.Register("u2", receiver)

	rt.RouteStopTyping("u1", "u2")

	msgs := receiver.received()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 stopTyping event, got %d", len(msgs))
	}
	var decoded struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msgs[0], &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != protocol.TypeStopTyping {
		t.Errorf("expected type %q, got %q", protocol.TypeStopTyping, decoded.Type)
	}
}

func TestRouteEngagementForwardsVerbatim(t *testing.T) {
	rt, reg := newTestRouter()

	receiver := &fakeHandle{}
	reg.Register("u2", receiver)

	event := protocol.NotificationEvent{
		Kind:        protocol.NotifyLike,
		UserID:      "u1",
		ReceiverID:  "u2",
		PostID:      "post-42",
		Message:     "Your post was liked",
		UserDetails: json.RawMessage(`{"username":"alice","profilePicture":"a.png"}`),
	}
	rt.RouteEngagement(event)

	msgs := receiver.received()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(msgs))
	}

	var decoded struct {
		Type         string                     `json:"type"`
		Notification protocol.NotificationEvent `json:"notification"`
	}
	if err := json.Unmarshal(msgs[0], &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != protocol.TypeGetNotification {
		t.Errorf("expected type %q, got %q", protocol.TypeGetNotification, decoded.Type)
	}
	if decoded.Notification.Kind != protocol.NotifyLike {
		t.Errorf("expected kind like, got %q", decoded.Notification.Kind)
	}
	if decoded.Notification.UserID != "u1" || decoded.Notification.ReceiverID != "u2" {
		t.Errorf("participant IDs modified in transit: %+v", decoded.Notification)
	}
	if decoded.Notification.PostID != "post-42" {
		t.Errorf("expected postId post-42, got %q", decoded.Notification.PostID)
	}
	var details map[string]string
	if err := json.Unmarshal(decoded.Notification.UserDetails, &details); err != nil {
		t.Fatalf("unmarshal userDetails: %v", err)
	}
	if details["username"] != "alice" {
		t.Errorf("userDetails modified in transit: %v", details)
	}
}

func TestRouteEngagementSuppressesSelfNotification(t *testing.T) {
	rt, reg := newTestRouter()

	self := &fakeHandle{}
	reg.Register("u1", self)

	// A user liking their own post must not generate a self-notification.
	rt.RouteEngagement(protocol.NotificationEvent{
		Kind:       protocol.NotifyLike,
		UserID:     "u1",
		ReceiverID: "u1",
	})

	if len(self.received()) != 0 {
		t.Fatalf("expected self-notification to be suppressed, got %d events", len(self.received()))
	}
}

func TestRouteEngagementOfflineTarget(t *testing.T) {
	rt, _ := newTestRouter()

	// Offline target drops the event; no error, no panic.
	rt.RouteEngagement(protocol.NotificationEvent{
		Kind:       protocol.NotifyFollow,
		UserID:     "u1",
		ReceiverID: "ghost",
	})
}

func decodeRoster(t *testing.T, data []byte) []string {
	t.Helper()
	var decoded struct {
		Type  string   `json:"type"`
		Users []string `json:"users"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal roster: %v", err)
	}
	if decoded.Type != protocol.TypeOnlineUsers {
		t.Fatalf("expected type %q, got %q", protocol.TypeOnlineUsers, decoded.Type)
	}
	return decoded.Users
}

func rosterEquals(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	set := make(map[string]bool, len(got))
	for _, u := range got {
		set[u] = true
	}
	for _, u := range want {
		if !set[u] {
			return false
		}
	}
	return true
}

func TestRosterBroadcastOnPresenceTransitions(t *testing.T) {
	rt, reg := newTestRouter()

	bc := &fakeBroadcaster{}
	rt.SetBroadcaster(bc)
	reg.SetOnChange(func([]string) { rt.BroadcastRoster() })

	a := &fakeHandle{}
	b := &fakeHandle{}

	reg.Register("u1", a)
	reg.Register("u2", b)

	users := decodeRoster(t, bc.last())
	if !rosterEquals(users, "u1", "u2") {
		t.Fatalf("expected roster {u1,u2}, got %v", users)
	}

	reg.Deregister("u1", a)

	users = decodeRoster(t, bc.last())
	if !rosterEquals(users, "u2") {
		t.Fatalf("expected roster {u2} after disconnect, got %v", users)
	}
}

func TestBroadcastRosterWithoutBroadcaster(t *testing.T) {
	rt, _ := newTestRouter()

	// Must not panic before the socket server is wired in.
	rt.BroadcastRoster()
}
