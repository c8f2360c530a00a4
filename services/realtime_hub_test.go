package services

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

type fakeConn struct {
	mu      sync.Mutex
	msgs    []string
	failing bool
	closed  bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("broken pipe")
	}
	c.msgs = append(c.msgs, string(data))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func TestRealtimeHub_PublishToUser(t *testing.T) {
	hub := NewRealtimeHub()
	a1, a2, b := &fakeConn{}, &fakeConn{}, &fakeConn{}
	hub.Register(&WSClient{UserID: "alice", Conn: a1})
	hub.Register(&WSClient{UserID: "alice", Conn: a2})
	hub.Register(&WSClient{UserID: "bob", Conn: b})

	hub.Publish("alice", DiaryEvent{Type: EventDiaryUpdated, Action: "created", EntryID: "e1"})

	for i, c := range []*fakeConn{a1, a2} {
		if len(c.msgs) != 1 || !strings.Contains(c.msgs[0], `"type":"diary.updated"`) {
			t.Errorf("alice conn %d got %v", i, c.msgs)
		}
	}
	if len(b.msgs) != 0 {
		t.Errorf("bob received alice's event: %v", b.msgs)
	}
}

func TestRealtimeHub_DropsFailingConnections(t *testing.T) {
	hub := NewRealtimeHub()
	good, bad := &fakeConn{}, &fakeConn{failing: true}
	hub.Register(&WSClient{UserID: "alice", Conn: good})
	hub.Register(&WSClient{UserID: "alice", Conn: bad})

	hub.Publish("alice", map[string]string{"type": "ping"})

	if hub.Connections("alice") != 1 {
		t.Errorf("connections = %d, want 1", hub.Connections("alice"))
	}
	if !bad.closed {
		t.Error("failing connection should be closed")
	}
}

func TestRealtimeHub_Unregister(t *testing.T) {
	hub := NewRealtimeHub()
	c := &WSClient{UserID: "alice", Conn: &fakeConn{}}
	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c) // second call is harmless
	if hub.Connections("alice") != 0 {
		t.Errorf("connections = %d", hub.Connections("alice"))
	}
	hub.Publish("alice", "nobody listening")
}
