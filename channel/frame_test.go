package channel

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want map[string]any
	}{
		{
			name: "flat",
			raw:  map[string]any{"type": TypeBidPlaced, "amount": 500.0},
			want: map[string]any{"type": TypeBidPlaced, "amount": 500.0},
		},
		{
			name: "nested",
			raw:  map[string]any{"type": TypeBidPlaced, "data": map[string]any{"amount": 750.0}},
			want: map[string]any{"type": TypeBidPlaced, "amount": 750.0},
		},
		{
			name: "nested overrides top level",
			raw:  map[string]any{"type": TypeBidPlaced, "amount": 1.0, "data": map[string]any{"amount": 2.0}},
			want: map[string]any{"type": TypeBidPlaced, "amount": 2.0},
		},
		{
			name: "type only nested",
			raw:  map[string]any{"data": map[string]any{"type": TypeViewerLeft, "user_id": "v1"}},
			want: map[string]any{"type": TypeViewerLeft, "user_id": "v1"},
		},
		{
			name: "top level type wins",
			raw:  map[string]any{"type": TypeViewerJoined, "data": map[string]any{"type": "other"}},
			want: map[string]any{"type": TypeViewerJoined},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Flatten(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("Flatten() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Flatten()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestFrameStruct(t *testing.T) {
	f := NewFrame(TypeChatSend, "ls-1", map[string]any{"message": "hi", "count": 3})
	s, err := f.Struct()
	if err != nil {
		t.Fatalf("Struct() error = %v", err)
	}
	m := s.AsMap()
	if TypeOf(m) != TypeChatSend {
		t.Errorf("TypeOf() = %q, want %q", TypeOf(m), TypeChatSend)
	}
	flat := Flatten(m)
	if flat["message"] != "hi" {
		t.Errorf("message = %v, want hi", flat["message"])
	}
	if flat["count"] != 3.0 {
		t.Errorf("count = %v, want 3", flat["count"])
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	in := Identity{LivestreamID: "ls-1", ParticipantID: "seller-1", DisplayName: "Asha", Role: RoleSeller}
	out := in.OutgoingContext(context.Background())
	md, _ := metadata.FromOutgoingContext(out)
	got, err := IdentityFromIncoming(metadata.NewIncomingContext(context.Background(), md))
	if err != nil {
		t.Fatalf("IdentityFromIncoming() error = %v", err)
	}
	if got != in {
		t.Errorf("IdentityFromIncoming() = %+v, want %+v", got, in)
	}

	if _, err := IdentityFromIncoming(context.Background()); err != ErrMissingIdentity {
		t.Errorf("IdentityFromIncoming(no md) error = %v, want %v", err, ErrMissingIdentity)
	}
	bad := metadata.Pairs(MDLivestreamID, "ls-1", MDParticipantID, "x", MDRole, "admin")
	if _, err := IdentityFromIncoming(metadata.NewIncomingContext(context.Background(), bad)); err != ErrMissingIdentity {
		t.Errorf("IdentityFromIncoming(bad role) error = %v, want %v", err, ErrMissingIdentity)
	}
}
