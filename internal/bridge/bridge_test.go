package bridge

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/RahulMahapatra3773/Vybe/internal/fanout"
	"github.com/RahulMahapatra3773/Vybe/internal/message"
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

func testRecord() message.Record {
	return message.Record{
		ID:             7,
		ConversationID: 3,
		SenderID:       "u1",
		ReceiverID:     "u2",
		Body:           "hey",
		CreatedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func decodeNewMessage(t *testing.T, data []byte) (string, message.Record) {
	t.Helper()
	var decoded struct {
		Type string `json:"type"`
		message.Record
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal newMessage: %v", err)
	}
	return decoded.Type, decoded.Record
}

func TestDeliverToBothParticipants(t *testing.T) {
	reg := presence.NewRegistry()
	br := New(fanout.New(reg))

	sender := &fakeHandle{}
	receiver := &fakeHandle{}
	reg.Register("u1", sender)
	reg.Register("u2", receiver)

	br.Deliver(testRecord())

	for name, h := range map[string]*fakeHandle{"sender": sender, "receiver": receiver} {
		msgs := h.received()
		if len(msgs) != 1 {
			t.Fatalf("%s: expected exactly 1 newMessage, got %d", name, len(msgs))
		}
		msgType, rec := decodeNewMessage(t, msgs[0])
		if msgType != protocol.TypeNewMessage {
			t.Errorf("%s: expected type %q, got %q", name, protocol.TypeNewMessage, msgType)
		}
		if rec.ID != 7 || rec.SenderID != "u1" || rec.ReceiverID != "u2" || rec.Body != "hey" {
			t.Errorf("%s: record modified in transit: %+v", name, rec)
		}
	}
}

func TestDeliverWithOfflineReceiver(t *testing.T) {
	reg := presence.NewRegistry()
	br := New(fanout.New(reg))

	sender := &fakeHandle{}
	reg.Register("u1", sender)

	// Receiver offline: the sender echo still goes out, nothing errors.
	br.Deliver(testRecord())

	if len(sender.received()) != 1 {
		t.Fatalf("expected sender echo, got %d messages", len(sender.received()))
	}
}

func TestDeliverTwiceEmitsTwice(t *testing.T) {
	reg := presence.NewRegistry()
	br := New(fanout.New(reg))

	receiver := &fakeHandle{}
	reg.Register("u2", receiver)

	// No deduplication: the same record delivered twice produces two
	// identical emissions. Debounce by message ID is the client's job.
	rec := testRecord()
	br.Deliver(rec)
	br.Deliver(rec)

	msgs := receiver.received()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 emissions, got %d", len(msgs))
	}
	if string(msgs[0]) != string(msgs[1]) {
		t.Fatalf("expected identical emissions, got %s vs %s", msgs[0], msgs[1])
	}
}

func TestAnnounceWithoutFabricDeliversLocally(t *testing.T) {
	reg := presence.NewRegistry()
	br := New(fanout.New(reg))

	sender := &fakeHandle{}
	receiver := &fakeHandle{}
	reg.Register("u1", sender)
	reg.Register("u2", receiver)

	// No messaging fabric configured: the record must still reach both
	// participants through direct local delivery.
	br.Announce(nil, testRecord())

	if len(sender.received()) != 1 || len(receiver.received()) != 1 {
		t.Fatalf("expected direct delivery to both participants, got %d and %d",
			len(sender.received()), len(receiver.received()))
	}
}

func TestDeliverToMultiDeviceSender(t *testing.T) {
	reg := presence.NewRegistry()
	br := New(fanout.New(reg))

	tab1 := &fakeHandle{}
	tab2 := &fakeHandle{}
	receiver := &fakeHandle{}
	reg.Register("u1", tab1)
	reg.Register("u1", tab2)
	reg.Register("u2", receiver)

	// Both open sender tabs stay in sync without re-querying storage.
	br.Deliver(testRecord())

	if len(tab1.received()) != 1 || len(tab2.received()) != 1 {
		t.Fatalf("expected both sender tabs to receive the echo, got %d and %d",
			len(tab1.received()), len(tab2.received()))
	}
	if len(receiver.received()) != 1 {
		t.Fatalf("expected receiver delivery, got %d", len(receiver.received()))
	}
}
