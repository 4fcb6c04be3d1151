package usecase

import (
	"context"

	"github.com/ponyo877/livebid/api"
	"github.com/ponyo877/livebid/channel"
	"github.com/ponyo877/livebid/cli/domain"
)

// Channel is the persistent connection for one livestream session.
type Channel interface {
	Connect(ctx context.Context) error
	Frames() <-chan map[string]any
	Emit(ctx context.Context, frame channel.Frame) error
	Connected() bool
	Close() error
}

// Meter is the credit metering endpoint.
type Meter interface {
	ProcessCreditDeduction(ctx context.Context, livestreamID string) (domain.CreditTick, error)
}

// Backend is the livestream REST backend.
type Backend interface {
	Meter

	GetLivestream(ctx context.Context, livestreamID string) (domain.Livestream, error)
	StartLivestream(ctx context.Context, livestreamID string) error
	EndLivestream(ctx context.Context, livestreamID string) error
	ListProducts(ctx context.Context, livestreamID string) ([]domain.Product, error)

	StartBidding(ctx context.Context, livestreamID string, req api.StartBiddingRequest) (string, error)
	EndBidding(ctx context.Context, roundID string, req api.EndBiddingRequest) error
}

// MediaGate checks that capture devices are usable before going live.
type MediaGate interface {
	Acquire(ctx context.Context) error
}

type allowMedia struct{}

func (allowMedia) Acquire(context.Context) error { return nil }
