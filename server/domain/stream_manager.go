package domain

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 256

type streamManagerImpl struct {
	mu            sync.RWMutex
	rooms         map[string]*roomImpl
	sessions      map[string]StreamSession
	responseChans map[string]chan<- StreamResponse
	banned        map[string]map[string]struct{}
	startTime     time.Time

	totalEvents   atomic.Int64
	droppedEvents atomic.Int64
}

type roomImpl struct {
	mu           sync.RWMutex
	livestreamID string
	clients      map[string]StreamSession
	broadcast    chan StreamEvent
	manager      *streamManagerImpl
}

func NewStreamManager() StreamManager {
	return &streamManagerImpl{
		rooms:         make(map[string]*roomImpl),
		sessions:      make(map[string]StreamSession),
		responseChans: make(map[string]chan<- StreamResponse),
		banned:        make(map[string]map[string]struct{}),
		startTime:     time.Now(),
	}
}

func newRoom(livestreamID string, manager *streamManagerImpl) *roomImpl {
	r := &roomImpl{
		livestreamID: livestreamID,
		clients:      make(map[string]StreamSession),
		broadcast:    make(chan StreamEvent, ringSize),
		manager:      manager,
	}
	go r.fanout()
	return r
}

// fanout delivers each event to every session in the room. Slow sessions
// miss events rather than stall the room.
func (r *roomImpl) fanout() {
	for event := range r.broadcast {
		response := NewStreamResponse(event)
		r.manager.mu.RLock()
		r.mu.RLock()
		for sessionID := range r.clients {
			responseChan, exists := r.manager.responseChans[sessionID]
			if !exists {
				continue
			}
			select {
			case responseChan <- response:
			default:
				r.manager.droppedEvents.Add(1)
			}
		}
		r.mu.RUnlock()
		r.manager.mu.RUnlock()
	}
}

func (sm *streamManagerImpl) JoinRoom(session StreamSession) error {
	if !session.IsValid() {
		return fmt.Errorf("%w: session %q", ErrInvalidInput, session.ID)
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, banned := sm.banned[session.LivestreamID][session.ParticipantID]; banned {
		return ErrBanned
	}

	sm.sessions[session.ID] = session

	room, exists := sm.rooms[session.LivestreamID]
	if !exists {
		room = newRoom(session.LivestreamID, sm)
		sm.rooms[session.LivestreamID] = room
	}

	room.mu.Lock()
	room.clients[session.ID] = session
	room.mu.Unlock()
	return nil
}

func (sm *streamManagerImpl) LeaveRoom(sessionID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	if room, roomExists := sm.rooms[session.LivestreamID]; roomExists {
		room.mu.Lock()
		delete(room.clients, sessionID)
		clientCount := len(room.clients)
		room.mu.Unlock()

		if clientCount == 0 {
			close(room.broadcast)
			delete(sm.rooms, session.LivestreamID)
		}
	}

	delete(sm.sessions, sessionID)
	return nil
}

func (sm *streamManagerImpl) GetActiveClients(livestreamID string) []StreamSession {
	sm.mu.RLock()
	room, exists := sm.rooms[livestreamID]
	sm.mu.RUnlock()

	if !exists {
		return []StreamSession{}
	}

	room.mu.RLock()
	defer room.mu.RUnlock()

	clients := make([]StreamSession, 0, len(room.clients))
	for _, session := range room.clients {
		clients = append(clients, session)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].JoinedAt.Before(clients[j].JoinedAt) })
	return clients
}

func (sm *streamManagerImpl) GetSession(sessionID string) (StreamSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	return session, exists
}

func (sm *streamManagerImpl) SessionsOf(livestreamID, participantID string) []StreamSession {
	var out []StreamSession
	for _, s := range sm.GetActiveClients(livestreamID) {
		if s.ParticipantID == participantID {
			out = append(out, s)
		}
	}
	return out
}

func (sm *streamManagerImpl) IsRoomActive(livestreamID string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	_, exists := sm.rooms[livestreamID]
	return exists
}

func (sm *streamManagerImpl) GetActiveRooms() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	rooms := make([]string, 0, len(sm.rooms))
	for id := range sm.rooms {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}

func (sm *streamManagerImpl) GetRoomClientCount(livestreamID string) int {
	sm.mu.RLock()
	room, exists := sm.rooms[livestreamID]
	sm.mu.RUnlock()

	if !exists {
		return 0
	}

	room.mu.RLock()
	defer room.mu.RUnlock()
	return len(room.clients)
}

// ViewerCount counts distinct viewers, however many connections each holds.
func (sm *streamManagerImpl) ViewerCount(livestreamID string) int {
	seen := make(map[string]struct{})
	for _, s := range sm.GetActiveClients(livestreamID) {
		if !s.IsSeller() {
			seen[s.ParticipantID] = struct{}{}
		}
	}
	return len(seen)
}

func (sm *streamManagerImpl) Ban(livestreamID, participantID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.banned[livestreamID] == nil {
		sm.banned[livestreamID] = make(map[string]struct{})
	}
	sm.banned[livestreamID][participantID] = struct{}{}
}

func (sm *streamManagerImpl) IsBanned(livestreamID, participantID string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	_, banned := sm.banned[livestreamID][participantID]
	return banned
}

func (sm *streamManagerImpl) SendToSession(sessionID string, response StreamResponse) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	responseChan, exists := sm.responseChans[sessionID]
	if !exists {
		return fmt.Errorf("%w: session not registered: %s", ErrNotFound, sessionID)
	}

	select {
	case responseChan <- response:
		return nil
	default:
		sm.droppedEvents.Add(1)
		return fmt.Errorf("session response channel is full")
	}
}

func (sm *streamManagerImpl) BroadcastToRoom(event StreamEvent) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	room, exists := sm.rooms[event.LivestreamID]
	if !exists {
		return fmt.Errorf("%w: room %s", ErrNotFound, event.LivestreamID)
	}

	select {
	case room.broadcast <- event:
		sm.totalEvents.Add(1)
		return nil
	default:
		sm.droppedEvents.Add(1)
		return fmt.Errorf("room broadcast channel is full")
	}
}

func (sm *streamManagerImpl) RegisterSession(sessionID string, responseChan chan<- StreamResponse) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.responseChans[sessionID]; exists {
		return fmt.Errorf("%w: session already registered: %s", ErrConflict, sessionID)
	}
	sm.responseChans[sessionID] = responseChan
	return nil
}

func (sm *streamManagerImpl) UnregisterSession(sessionID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	delete(sm.responseChans, sessionID)
	return nil
}

func (sm *streamManagerImpl) IsSessionRegistered(sessionID string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	_, exists := sm.responseChans[sessionID]
	return exists
}

func (sm *streamManagerImpl) GetRegisteredSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.responseChans)
}

func (sm *streamManagerImpl) Cleanup() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, room := range sm.rooms {
		close(room.broadcast)
	}

	sm.rooms = make(map[string]*roomImpl)
	sm.sessions = make(map[string]StreamSession)
	sm.responseChans = make(map[string]chan<- StreamResponse)
	return nil
}

func (sm *streamManagerImpl) GetStats() StreamStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return StreamStats{
		ActiveRooms:    len(sm.rooms),
		ActiveSessions: len(sm.sessions),
		TotalEvents:    sm.totalEvents.Load(),
		DroppedEvents:  sm.droppedEvents.Load(),
		Uptime:         time.Since(sm.startTime).Round(time.Second).String(),
	}
}
