package domain

import (
	"errors"
	"testing"

	"github.com/ponyo877/livebid/channel"
)

func TestNewStreamRequest(t *testing.T) {
	tests := []struct {
		name      string
		frameType string
		fields    map[string]any
		want      StreamRequestType
		valid     bool
		seller    bool
	}{
		{name: "chat", frameType: channel.TypeChatSend, fields: map[string]any{"message": "  hi  "}, want: RequestChat, valid: true},
		{name: "blank chat", frameType: channel.TypeChatSend, fields: map[string]any{"message": "   "}, want: RequestChat},
		{name: "bid from string", frameType: channel.TypePlaceBid, fields: map[string]any{"amount": "750"}, want: RequestBid, valid: true},
		{name: "zero bid", frameType: channel.TypePlaceBid, fields: map[string]any{"amount": 0.0}, want: RequestBid},
		{name: "start", frameType: channel.TypeStartBidding, fields: map[string]any{"bidding_id": "r1", "timer_duration": 60.0}, want: RequestStartBidding, valid: true, seller: true},
		{name: "end", frameType: channel.TypeEndBidding, fields: map[string]any{"bidding_id": "r1", "bid_count": 2.0}, want: RequestEndBidding, valid: true, seller: true},
		{name: "ban", frameType: channel.TypeBanViewer, fields: map[string]any{"user_id": "v1"}, want: RequestBan, valid: true, seller: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewStreamRequest(tt.frameType, tt.fields)
			if err != nil {
				t.Fatalf("NewStreamRequest() error = %v", err)
			}
			if req.Type != tt.want || req.IsValid() != tt.valid || req.SellerOnly() != tt.seller {
				t.Errorf("NewStreamRequest() = %+v valid=%v seller=%v", req, req.IsValid(), req.SellerOnly())
			}
		})
	}
}

func TestNewStreamRequestUnknownType(t *testing.T) {
	if _, err := NewStreamRequest(channel.TypeChatMessage, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("NewStreamRequest(chat_message) error = %v, want %v", err, ErrInvalidInput)
	}
}

func TestRoundClock(t *testing.T) {
	if _, err := NewRoundClock("r1", "p1", 100, 5); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("NewRoundClock(5s) error = %v, want %v", err, ErrInvalidInput)
	}
	c, err := NewRoundClock("r1", "p1", 100, MinRoundDuration)
	if err != nil {
		t.Fatal(err)
	}
	for i := MinRoundDuration - 1; i > 0; i-- {
		if remaining, expired := c.Tick(); remaining != i || expired {
			t.Fatalf("Tick() = %d, %v, want %d, false", remaining, expired, i)
		}
	}
	if !c.Accepts("r1") || c.Accepts("r2") {
		t.Error("Accepts() before expiry")
	}
	if _, expired := c.Tick(); !expired {
		t.Error("last Tick() did not expire the round")
	}
	if _, expired := c.Tick(); expired {
		t.Error("Tick() after expiry reported expiry again")
	}
	if c.Accepts("") {
		t.Error("expired clock still accepts bids")
	}
}
