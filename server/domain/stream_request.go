package domain

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/ponyo877/livebid/channel"
)

type StreamRequestType int

const (
	RequestUnknown StreamRequestType = iota
	RequestChat
	RequestBid
	RequestStartBidding
	RequestEndBidding
	RequestBan
)

func (t StreamRequestType) String() string {
	switch t {
	case RequestChat:
		return channel.TypeChatSend
	case RequestBid:
		return channel.TypePlaceBid
	case RequestStartBidding:
		return channel.TypeStartBidding
	case RequestEndBidding:
		return channel.TypeEndBidding
	case RequestBan:
		return channel.TypeBanViewer
	default:
		return "unknown"
	}
}

func parseRequestType(frameType string) StreamRequestType {
	switch frameType {
	case channel.TypeChatSend:
		return RequestChat
	case channel.TypePlaceBid:
		return RequestBid
	case channel.TypeStartBidding:
		return RequestStartBidding
	case channel.TypeEndBidding:
		return RequestEndBidding
	case channel.TypeBanViewer:
		return RequestBan
	default:
		return RequestUnknown
	}
}

// StreamRequest is a participant frame decoded into the fields the hub
// understands. Unused fields stay zero.
type StreamRequest struct {
	Type StreamRequestType `mapstructure:"-"`

	Message  string `mapstructure:"message"`
	ClientID string `mapstructure:"client_id"`

	BiddingID     string  `mapstructure:"bidding_id"`
	ProductID     string  `mapstructure:"product_id"`
	ProductName   string  `mapstructure:"product_name"`
	StartingPrice float64 `mapstructure:"starting_price"`
	TimerDuration int     `mapstructure:"timer_duration"`
	Amount        float64 `mapstructure:"amount"`

	Reason     string `mapstructure:"reason"`
	WinnerID   string `mapstructure:"winner_id"`
	WinnerName string `mapstructure:"winner_name"`
	BidCount   int    `mapstructure:"bid_count"`

	UserID string `mapstructure:"user_id"`
}

// NewStreamRequest decodes a flattened participant frame.
func NewStreamRequest(frameType string, fields map[string]any) (StreamRequest, error) {
	req := StreamRequest{Type: parseRequestType(frameType)}
	if req.Type == RequestUnknown {
		return StreamRequest{}, fmt.Errorf("%w: unknown frame type %q", ErrInvalidInput, frameType)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &req,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return StreamRequest{}, err
	}
	if err := dec.Decode(fields); err != nil {
		return StreamRequest{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	req.Message = strings.TrimSpace(req.Message)
	return req, nil
}

func (r StreamRequest) IsValid() bool {
	switch r.Type {
	case RequestChat:
		return r.Message != ""
	case RequestBid:
		return r.Amount > 0
	case RequestStartBidding:
		return r.BiddingID != "" && r.TimerDuration > 0
	case RequestEndBidding:
		return r.BiddingID != ""
	case RequestBan:
		return r.UserID != ""
	default:
		return false
	}
}

// SellerOnly reports whether only the livestream's seller may send r.
func (r StreamRequest) SellerOnly() bool {
	switch r.Type {
	case RequestStartBidding, RequestEndBidding, RequestBan:
		return true
	default:
		return false
	}
}

func (r StreamRequest) String() string {
	switch r.Type {
	case RequestChat:
		return r.Type.String() + ": " + r.Message
	case RequestBid:
		return fmt.Sprintf("%s: %.2f on %s", r.Type, r.Amount, r.BiddingID)
	case RequestBan:
		return r.Type.String() + ": " + r.UserID
	default:
		return r.Type.String() + ": " + r.BiddingID
	}
}
