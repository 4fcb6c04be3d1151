package domain

import "time"

type Message struct {
	ID           string
	LivestreamID string
	SenderID     string
	DisplayName  string
	Role         string
	Content      string
	CreatedAt    time.Time
}

func NewMessage(id string, session StreamSession, content string, createdAt time.Time) Message {
	return Message{
		ID:           id,
		LivestreamID: session.LivestreamID,
		SenderID:     session.ParticipantID,
		DisplayName:  session.Name,
		Role:         session.Role,
		Content:      content,
		CreatedAt:    createdAt,
	}
}
