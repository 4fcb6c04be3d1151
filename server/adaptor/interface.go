package adaptor

import (
	"context"

	"github.com/ponyo877/livebid/server/domain"
	"github.com/ponyo877/livebid/server/usecase"
)

type Usecase interface {
	CreateLivestream(ctx context.Context, title string, credits int) (domain.Livestream, error)
	GetLivestream(ctx context.Context, id string) (domain.Livestream, error)
	StartLivestream(ctx context.Context, id string) (domain.Livestream, error)
	EndLivestream(ctx context.Context, id string) (domain.Livestream, error)
	AddProduct(ctx context.Context, livestreamID, name string, price float64) (domain.Product, error)
	ListProducts(ctx context.Context, livestreamID string) ([]domain.Product, error)
	StartBidding(ctx context.Context, livestreamID, productID string, startingPrice float64, duration int) (domain.Bidding, error)
	EndBidding(ctx context.Context, id string, result usecase.BiddingResult) (domain.Bidding, error)
	DeductCredit(ctx context.Context, livestreamID string) (domain.CreditDeduction, error)
	ListMessages(ctx context.Context, livestreamID, pattern string, limit int) ([]domain.Message, error)
}

type StreamUsecase interface {
	HandleStreamSession(requestChan <-chan domain.StreamRequest, responseChan chan<- domain.StreamResponse, session domain.StreamSession) error
	GetStreamStats() domain.StreamStats
}
