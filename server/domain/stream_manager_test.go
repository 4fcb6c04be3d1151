package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/ponyo877/livebid/channel"
)

func newSession(id, participant, role string) StreamSession {
	return NewStreamSession(id, channel.Identity{
		LivestreamID:  "ls1",
		ParticipantID: participant,
		DisplayName:   participant,
		Role:          role,
	}, "127.0.0.1:0")
}

func register(t *testing.T, sm StreamManager, s StreamSession) chan StreamResponse {
	t.Helper()
	ch := make(chan StreamResponse, 8)
	if err := sm.RegisterSession(s.ID, ch); err != nil {
		t.Fatal(err)
	}
	if err := sm.JoinRoom(s); err != nil {
		t.Fatal(err)
	}
	return ch
}

func receive(t *testing.T, ch <-chan StreamResponse) StreamResponse {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no response delivered")
		return StreamResponse{}
	}
}

func TestStreamManagerBroadcast(t *testing.T) {
	sm := NewStreamManager()
	defer sm.Cleanup()

	seller := register(t, sm, newSession("s1", "shop", channel.RoleSeller))
	viewer := register(t, sm, newSession("s2", "v1", channel.RoleViewer))

	if err := sm.BroadcastToRoom(NewStreamEvent(channel.TypeChatMessage, "ls1", map[string]any{"message": "hi"})); err != nil {
		t.Fatalf("BroadcastToRoom() error = %v", err)
	}
	for _, ch := range []chan StreamResponse{seller, viewer} {
		if r := receive(t, ch); r.Event.Type != channel.TypeChatMessage {
			t.Errorf("delivered %v, want chat_message", r)
		}
	}

	if err := sm.BroadcastToRoom(NewStreamEvent(channel.TypeChatMessage, "other", nil)); !errors.Is(err, ErrNotFound) {
		t.Errorf("BroadcastToRoom(unknown room) error = %v, want %v", err, ErrNotFound)
	}
	if got := sm.GetStats(); got.ActiveRooms != 1 || got.ActiveSessions != 2 || got.TotalEvents != 1 {
		t.Errorf("GetStats() = %+v", got)
	}
}

func TestStreamManagerViewerCount(t *testing.T) {
	sm := NewStreamManager()
	defer sm.Cleanup()

	register(t, sm, newSession("s1", "shop", channel.RoleSeller))
	register(t, sm, newSession("s2", "v1", channel.RoleViewer))
	register(t, sm, newSession("s3", "v1", channel.RoleViewer))
	register(t, sm, newSession("s4", "v2", channel.RoleViewer))

	if n := sm.ViewerCount("ls1"); n != 2 {
		t.Errorf("ViewerCount() = %d, want 2", n)
	}
	if n := len(sm.SessionsOf("ls1", "v1")); n != 2 {
		t.Errorf("SessionsOf(v1) = %d sessions, want 2", n)
	}

	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		if err := sm.LeaveRoom(id); err != nil {
			t.Fatalf("LeaveRoom(%s) error = %v", id, err)
		}
	}
	if sm.IsRoomActive("ls1") {
		t.Error("room still active after everyone left")
	}
	if err := sm.LeaveRoom("s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second LeaveRoom() error = %v, want %v", err, ErrNotFound)
	}
}

func TestStreamManagerBan(t *testing.T) {
	sm := NewStreamManager()
	defer sm.Cleanup()

	sm.Ban("ls1", "troll")
	if !sm.IsBanned("ls1", "troll") || sm.IsBanned("ls2", "troll") {
		t.Error("ban not scoped to the livestream")
	}
	if err := sm.JoinRoom(newSession("s9", "troll", channel.RoleViewer)); !errors.Is(err, ErrBanned) {
		t.Errorf("JoinRoom(banned) error = %v, want %v", err, ErrBanned)
	}
}

func TestStreamManagerSendToSession(t *testing.T) {
	sm := NewStreamManager()
	defer sm.Cleanup()

	ch := register(t, sm, newSession("s1", "v1", channel.RoleViewer))
	if err := sm.SendToSession("s1", NewDisconnect(ErrBanned)); err != nil {
		t.Fatal(err)
	}
	if r := receive(t, ch); !r.Disconnect || !errors.Is(r.Error, ErrBanned) {
		t.Errorf("SendToSession delivered %+v", r)
	}
	if err := sm.SendToSession("missing", NewStreamError(ErrBanned)); !errors.Is(err, ErrNotFound) {
		t.Errorf("SendToSession(missing) error = %v, want %v", err, ErrNotFound)
	}
	if err := sm.RegisterSession("s1", ch); !errors.Is(err, ErrConflict) {
		t.Errorf("RegisterSession(duplicate) error = %v, want %v", err, ErrConflict)
	}
}
