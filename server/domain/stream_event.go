package domain

import (
	"time"

	"github.com/ponyo877/livebid/channel"
)

// StreamEvent is one frame fanned out by the hub. Data holds only values a
// protobuf Struct can carry.
type StreamEvent struct {
	Type         string
	LivestreamID string
	Data         map[string]any
	Timestamp    time.Time
}

func NewStreamEvent(eventType, livestreamID string, data map[string]any) StreamEvent {
	if data == nil {
		data = map[string]any{}
	}
	return StreamEvent{
		Type:         eventType,
		LivestreamID: livestreamID,
		Data:         data,
		Timestamp:    time.Now(),
	}
}

func NewErrorEvent(livestreamID string, err error) StreamEvent {
	return NewStreamEvent(channel.TypeError, livestreamID, map[string]any{"message": err.Error()})
}

func (e StreamEvent) IsValid() bool {
	return e.Type != "" && e.LivestreamID != ""
}

func (e StreamEvent) Frame() channel.Frame {
	return channel.NewFrame(e.Type, e.LivestreamID, e.Data)
}

func (e StreamEvent) String() string {
	return e.Type + "@" + e.LivestreamID
}
