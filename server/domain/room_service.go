package domain

type RoomService interface {
	JoinRoom(session StreamSession) error
	LeaveRoom(sessionID string) error

	GetActiveClients(livestreamID string) []StreamSession
	GetSession(sessionID string) (StreamSession, bool)
	SessionsOf(livestreamID, participantID string) []StreamSession

	IsRoomActive(livestreamID string) bool
	GetActiveRooms() []string

	GetRoomClientCount(livestreamID string) int
	ViewerCount(livestreamID string) int

	Ban(livestreamID, participantID string)
	IsBanned(livestreamID, participantID string) bool
}

type MessageBroadcaster interface {
	SendToSession(sessionID string, response StreamResponse) error

	BroadcastToRoom(event StreamEvent) error

	RegisterSession(sessionID string, responseChan chan<- StreamResponse) error
	UnregisterSession(sessionID string) error

	IsSessionRegistered(sessionID string) bool
	GetRegisteredSessionCount() int
}

type StreamManager interface {
	RoomService
	MessageBroadcaster

	Cleanup() error
	GetStats() StreamStats
}

type StreamStats struct {
	ActiveRooms    int    `json:"active_rooms"`
	ActiveSessions int    `json:"active_sessions"`
	TotalEvents    int64  `json:"total_events"`
	DroppedEvents  int64  `json:"dropped_events"`
	Uptime         string `json:"uptime"`
}
