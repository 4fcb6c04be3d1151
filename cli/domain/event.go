package domain

import "time"

type EventType int

const (
	EventUnknown EventType = iota
	EventConnectionStatus
	EventViewerJoined
	EventViewerLeft
	EventChatMessage
	EventBidPlaced
	EventBiddingStarted
	EventBiddingEnded
	EventBiddingTimerUpdate
	EventUserBanned
)

var eventNames = map[EventType]string{
	EventConnectionStatus:   "connection_status",
	EventViewerJoined:       "viewer_joined",
	EventViewerLeft:         "viewer_left",
	EventChatMessage:        "chat_message",
	EventBidPlaced:          "bid_placed",
	EventBiddingStarted:     "bidding_started",
	EventBiddingEnded:       "bidding_ended",
	EventBiddingTimerUpdate: "bidding_timer_update",
	EventUserBanned:         "user_banned",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

func ParseEventType(s string) EventType {
	for t, name := range eventNames {
		if name == s {
			return t
		}
	}
	return EventUnknown
}

// Event is the canonical inbound record, whatever shape the frame arrived in.
// Pointer fields are nil when the frame did not carry them.
type Event struct {
	Type EventType `mapstructure:"-"`

	RawType      string `mapstructure:"type"`
	LivestreamID string `mapstructure:"livestream_id"`

	Connected   bool `mapstructure:"connected"`
	ViewerCount *int `mapstructure:"viewer_count"`

	UserID   string `mapstructure:"user_id"`
	UserName string `mapstructure:"user_name"`
	Role     string `mapstructure:"role"`

	MessageID string    `mapstructure:"id"`
	Message   string    `mapstructure:"message"`
	CreatedAt time.Time `mapstructure:"created_at"`

	BiddingID     string    `mapstructure:"bidding_id"`
	ProductID     string    `mapstructure:"product_id"`
	StartingPrice float64   `mapstructure:"starting_price"`
	TimerDuration int       `mapstructure:"timer_duration"`
	RemainingTime *int      `mapstructure:"remaining_time"`
	Amount        float64   `mapstructure:"amount"`
	Timestamp     time.Time `mapstructure:"timestamp"`

	WinnerID   string `mapstructure:"winner_id"`
	WinnerName string `mapstructure:"winner_name"`
	Reason     string `mapstructure:"reason"`
}

func (e Event) ChatMessage() ChatMessage {
	return ChatMessage{
		ID:         e.MessageID,
		SenderID:   e.UserID,
		SenderName: e.UserName,
		Content:    e.Message,
		Role:       ParseRole(e.Role),
		CreatedAt:  e.CreatedAt,
	}
}

func (e Event) Bid() Bid {
	return NewBid(e.Amount, e.UserID, e.UserName, e.Timestamp)
}

func (e Event) Viewer() Viewer {
	return Viewer{ID: e.UserID, DisplayName: e.UserName}
}

func (e Event) String() string {
	return e.Type.String() + "@" + e.LivestreamID
}
