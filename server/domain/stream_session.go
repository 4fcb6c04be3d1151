package domain

import (
	"time"

	"github.com/ponyo877/livebid/channel"
)

type StreamSession struct {
	ID            string
	ParticipantID string
	Name          string
	LivestreamID  string
	Role          string
	JoinedAt      time.Time
	Remote        string
}

func NewStreamSession(id string, identity channel.Identity, remote string) StreamSession {
	return StreamSession{
		ID:            id,
		ParticipantID: identity.ParticipantID,
		Name:          identity.DisplayName,
		LivestreamID:  identity.LivestreamID,
		Role:          identity.Role,
		JoinedAt:      time.Now(),
		Remote:        remote,
	}
}

func (s StreamSession) IsValid() bool {
	return s.ID != "" && s.LivestreamID != "" && s.ParticipantID != ""
}

func (s StreamSession) IsSeller() bool {
	return s.Role == channel.RoleSeller
}

func (s StreamSession) String() string {
	return s.Name + "@" + s.LivestreamID + "(" + s.Role + ")"
}
