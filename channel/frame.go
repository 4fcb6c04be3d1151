package channel

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Frame types delivered to participants.
const (
	TypeConnectionStatus   = "connection_status"
	TypeViewerJoined       = "viewer_joined"
	TypeViewerLeft         = "viewer_left"
	TypeChatMessage        = "chat_message"
	TypeBidPlaced          = "bid_placed"
	TypeBiddingStarted     = "bidding_started"
	TypeBiddingEnded       = "bidding_ended"
	TypeBiddingTimerUpdate = "bidding_timer_update"
	TypeUserBanned         = "user_banned"
	TypeError              = "error"
)

// Frame types sent by participants.
const (
	TypeStartBidding = "start_bidding"
	TypeEndBidding   = "end_bidding"
	TypeChatSend     = "chat_send"
	TypeBanViewer    = "ban_viewer"
	TypePlaceBid     = "place_bid"
)

// Frame is the canonical outbound shape: routing fields at the top level,
// payload nested under "data".
type Frame struct {
	Type         string
	LivestreamID string
	Data         map[string]any
}

func NewFrame(frameType, livestreamID string, data map[string]any) Frame {
	if data == nil {
		data = map[string]any{}
	}
	return Frame{Type: frameType, LivestreamID: livestreamID, Data: data}
}

func (f Frame) Map() map[string]any {
	return map[string]any{
		"type":          f.Type,
		"livestream_id": f.LivestreamID,
		"data":          f.Data,
	}
}

func (f Frame) Struct() (*structpb.Struct, error) {
	s, err := structpb.NewStruct(f.Map())
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return s, nil
}

func (f Frame) String() string {
	return f.Type + "@" + f.LivestreamID
}

// Flatten merges a raw frame into a single field map. Fields nested under
// "data" override top-level fields of the same name, except "type", which is
// read from the top level and only taken from "data" when missing there.
func Flatten(raw map[string]any) map[string]any {
	flat := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "data" {
			continue
		}
		flat[k] = v
	}
	data, ok := raw["data"].(map[string]any)
	if !ok {
		return flat
	}
	for k, v := range data {
		if k == "type" {
			if t, _ := flat["type"].(string); t != "" {
				continue
			}
		}
		flat[k] = v
	}
	return flat
}

// TypeOf returns the frame type of a raw frame in either shape.
func TypeOf(raw map[string]any) string {
	t, _ := Flatten(raw)["type"].(string)
	return t
}

// Timestamp formats t the way frames carry instants.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
