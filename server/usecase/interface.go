package usecase

import (
	"context"

	"github.com/ponyo877/livebid/server/domain"
)

type Repository interface {
	// Livestream
	CreateLivestream(ctx context.Context, ls domain.Livestream) error
	GetLivestream(ctx context.Context, id string) (domain.Livestream, error)
	UpdateLivestream(ctx context.Context, ls domain.Livestream) error
	DeductCredit(ctx context.Context, id string) (domain.CreditDeduction, error)

	// Product
	CreateProduct(ctx context.Context, p domain.Product) error
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context, livestreamID string) ([]domain.Product, error)

	// Bidding
	CreateBidding(ctx context.Context, b domain.Bidding) error
	GetBidding(ctx context.Context, id string) (domain.Bidding, error)
	FinishBidding(ctx context.Context, b domain.Bidding) error
	CancelOpenBiddings(ctx context.Context, livestreamID, reason string) (int64, error)

	// Message
	CreateMessage(ctx context.Context, m domain.Message) error
	ListMessages(ctx context.Context, livestreamID string, limit int) ([]domain.Message, error)
	ListMessagesByQuery(ctx context.Context, livestreamID, pattern string) ([]domain.Message, error)
}

// Publisher announces finalized rounds to downstream consumers.
type Publisher interface {
	PublishBiddingFinalized(ctx context.Context, event domain.BiddingFinalized) error
}
