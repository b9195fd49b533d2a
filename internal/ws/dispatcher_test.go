package ws

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/RahulMahapatra3773/Vybe/internal/protocol"
)

// recordingConn is a net.Conn that captures everything written to it.
type recordingConn struct {
	mu      sync.Mutex
	written []byte
}

func (c *recordingConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, p...)
	return len(p), nil
}

func (c *recordingConn) Read(p []byte) (int, error)      { return 0, io.EOF }
func (c *recordingConn) Close() error                    { return nil }
func (c *recordingConn) LocalAddr() net.Addr             { return nil }
func (c *recordingConn) RemoteAddr() net.Addr            { return nil }
func (c *recordingConn) SetDeadline(time.Time) error     { return nil }
func (c *recordingConn) SetReadDeadline(time.Time) error { return nil }
func (c *recordingConn) SetWriteDeadline(time.Time) error {
	return nil
}

func (c *recordingConn) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written
}

func TestDispatchDropsMalformedFrame(t *testing.T) {
	d := NewMessageDispatcher()
	handled := false
	d.Register(protocol.TypeTyping, func(*Connection, interface{}) { handled = true })

	rc := &recordingConn{}
	conn := &Connection{ID: "c1", Conn: rc}
	d.Dispatch(conn, []byte(`{not json`))

	if handled {
		t.Fatal("no handler may fire for a malformed frame")
	}
	// The connection stays alive and the peer sees nothing.
	if n := len(rc.bytes()); n != 0 {
		t.Fatalf("expected nothing written to the peer, got %d bytes", n)
	}
}

func TestDispatchDropsUnsupportedType(t *testing.T) {
	d := NewMessageDispatcher()
	handled := false
	d.Register(protocol.TypeTyping, func(*Connection, interface{}) { handled = true })

	rc := &recordingConn{}
	conn := &Connection{ID: "c1", Conn: rc}
	d.Dispatch(conn, []byte(`{"type":"selfDestruct"}`))

	if handled {
		t.Fatal("no handler may fire for an unsupported message type")
	}
	if n := len(rc.bytes()); n != 0 {
		t.Fatalf("expected nothing written to the peer, got %d bytes", n)
	}
}

func TestDispatchAnswersPing(t *testing.T) {
	d := NewMessageDispatcher()

	rc := &recordingConn{}
	conn := &Connection{ID: "c1", Conn: rc}
	d.Dispatch(conn, []byte(`{"type":"ping"}`))

	if !bytes.Contains(rc.bytes(), []byte(`"type":"pong"`)) {
		t.Fatalf("expected a pong frame, got %q", rc.bytes())
	}
}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := NewMessageDispatcher()

	var got protocol.TypingMsg
	d.Register(protocol.TypeTyping, func(_ *Connection, msg interface{}) {
		got = msg.(protocol.TypingMsg)
	})

	conn := &Connection{ID: "c1", Conn: &recordingConn{}}
	d.Dispatch(conn, []byte(`{"type":"typing","receiverId":"u2"}`))

	if got.ReceiverID != "u2" {
		t.Fatalf("expected handler to receive receiverId u2, got %q", got.ReceiverID)
	}
}
