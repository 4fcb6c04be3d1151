package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/ponyo877/livebid/server/domain"
)

var (
	messageLimit int = 1000
)

type Usecase struct {
	repo      Repository
	publisher Publisher
	log       *slog.Logger
	now       func() time.Time
}

// NewUsecase builds the backend use cases. publisher may be nil.
func NewUsecase(repo Repository, publisher Publisher, log *slog.Logger) *Usecase {
	return &Usecase{
		repo:      repo,
		publisher: publisher,
		log:       log.With("component", "backend"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (u *Usecase) CreateLivestream(ctx context.Context, title string, credits int) (domain.Livestream, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Livestream{}, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if credits < 0 {
		return domain.Livestream{}, fmt.Errorf("%w: credits must not be negative", domain.ErrInvalidInput)
	}
	ls := domain.Livestream{
		ID:             ulid.Make().String(),
		Title:          title,
		Status:         domain.LivestreamScheduled,
		CreditsBalance: credits,
		CreatedAt:      u.now(),
	}
	if err := u.repo.CreateLivestream(ctx, ls); err != nil {
		return domain.Livestream{}, fmt.Errorf("error creating livestream: %w", err)
	}
	return ls, nil
}

func (u *Usecase) GetLivestream(ctx context.Context, id string) (domain.Livestream, error) {
	return u.repo.GetLivestream(ctx, id)
}

// StartLivestream takes a scheduled livestream live. Starting a live one again
// is a no-op.
func (u *Usecase) StartLivestream(ctx context.Context, id string) (domain.Livestream, error) {
	ls, err := u.repo.GetLivestream(ctx, id)
	if err != nil {
		return domain.Livestream{}, err
	}
	switch {
	case ls.IsLive():
		return ls, nil
	case ls.IsFinished():
		return domain.Livestream{}, fmt.Errorf("%w: livestream is %s", domain.ErrConflict, ls.Status)
	case ls.CreditsBalance <= 0:
		return domain.Livestream{}, domain.ErrInsufficientCredits
	}
	now := u.now()
	ls.Status = domain.LivestreamLive
	ls.StartedAt = &now
	if err := u.repo.UpdateLivestream(ctx, ls); err != nil {
		return domain.Livestream{}, fmt.Errorf("error starting livestream: %w", err)
	}
	u.log.Info("livestream live", "livestream_id", id, "credits", ls.CreditsBalance)
	return ls, nil
}

// EndLivestream ends a livestream and cancels any round left open. Ending an
// ended livestream is a no-op.
func (u *Usecase) EndLivestream(ctx context.Context, id string) (domain.Livestream, error) {
	ls, err := u.repo.GetLivestream(ctx, id)
	if err != nil {
		return domain.Livestream{}, err
	}
	if ls.IsFinished() {
		return ls, nil
	}
	now := u.now()
	ls.Status = domain.LivestreamEnded
	ls.EndedAt = &now
	if err := u.repo.UpdateLivestream(ctx, ls); err != nil {
		return domain.Livestream{}, fmt.Errorf("error ending livestream: %w", err)
	}
	if n, err := u.repo.CancelOpenBiddings(ctx, id, "livestream_ended"); err != nil {
		u.log.Warn("could not cancel open rounds", "livestream_id", id, "error", err)
	} else if n > 0 {
		u.log.Info("cancelled open rounds", "livestream_id", id, "count", n)
	}
	u.log.Info("livestream ended", "livestream_id", id, "consumed", ls.TotalCreditsConsumed)
	return ls, nil
}

func (u *Usecase) AddProduct(ctx context.Context, livestreamID, name string, price float64) (domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" || price <= 0 {
		return domain.Product{}, fmt.Errorf("%w: product needs a name and a positive price", domain.ErrInvalidInput)
	}
	if _, err := u.repo.GetLivestream(ctx, livestreamID); err != nil {
		return domain.Product{}, err
	}
	p := domain.Product{
		ID:           ulid.Make().String(),
		LivestreamID: livestreamID,
		Name:         name,
		Price:        price,
		CreatedAt:    u.now(),
	}
	if err := u.repo.CreateProduct(ctx, p); err != nil {
		return domain.Product{}, fmt.Errorf("error adding product: %w", err)
	}
	return p, nil
}

func (u *Usecase) ListProducts(ctx context.Context, livestreamID string) ([]domain.Product, error) {
	if _, err := u.repo.GetLivestream(ctx, livestreamID); err != nil {
		return nil, err
	}
	return u.repo.ListProducts(ctx, livestreamID)
}

// StartBidding records a new round for a live livestream. A non-positive
// starting price falls back to the product's price.
func (u *Usecase) StartBidding(ctx context.Context, livestreamID, productID string, startingPrice float64, duration int) (domain.Bidding, error) {
	if duration < domain.MinRoundDuration || duration > domain.MaxRoundDuration {
		return domain.Bidding{}, fmt.Errorf("%w: timer duration must be between %d and %d seconds",
			domain.ErrInvalidInput, domain.MinRoundDuration, domain.MaxRoundDuration)
	}
	ls, err := u.repo.GetLivestream(ctx, livestreamID)
	if err != nil {
		return domain.Bidding{}, err
	}
	if !ls.IsLive() {
		return domain.Bidding{}, fmt.Errorf("%w: livestream is %s", domain.ErrConflict, ls.Status)
	}
	product, err := u.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Bidding{}, err
	}
	if product.LivestreamID != livestreamID {
		return domain.Bidding{}, fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}
	if startingPrice <= 0 {
		startingPrice = product.Price
	}
	b := domain.Bidding{
		ID:            ulid.Make().String(),
		LivestreamID:  livestreamID,
		ProductID:     productID,
		StartingPrice: startingPrice,
		TimerDuration: duration,
		Status:        domain.BiddingActive,
		StartedAt:     u.now(),
	}
	// Rounds left open by a failed finalize are cancelled first.
	if n, err := u.repo.CancelOpenBiddings(ctx, livestreamID, "superseded"); err != nil {
		return domain.Bidding{}, fmt.Errorf("error superseding open rounds: %w", err)
	} else if n > 0 {
		u.log.Warn("superseded unfinalized rounds", "livestream_id", livestreamID, "count", n)
	}
	if err := u.repo.CreateBidding(ctx, b); err != nil {
		return domain.Bidding{}, fmt.Errorf("error starting bidding: %w", err)
	}
	return b, nil
}

type BiddingResult struct {
	WinnerID   string
	WinnerName string
	Amount     float64
	Reason     string
}

// EndBidding stores a round's result and publishes it. Finalizing a round
// that is no longer active is a no-op, so clients may retry freely.
func (u *Usecase) EndBidding(ctx context.Context, id string, result BiddingResult) (domain.Bidding, error) {
	b, err := u.repo.GetBidding(ctx, id)
	if err != nil {
		return domain.Bidding{}, err
	}
	if b.Status != domain.BiddingActive {
		return b, nil
	}
	if result.WinnerID != "" && result.Amount < b.StartingPrice {
		return domain.Bidding{}, fmt.Errorf("%w: winning amount below starting price", domain.ErrInvalidInput)
	}
	now := u.now()
	b.Status = domain.BiddingEnded
	b.WinnerID = result.WinnerID
	b.WinnerName = result.WinnerName
	b.Amount = result.Amount
	b.Reason = result.Reason
	b.EndedAt = &now
	if err := u.repo.FinishBidding(ctx, b); err != nil {
		return domain.Bidding{}, fmt.Errorf("error ending bidding: %w", err)
	}

	if u.publisher != nil {
		event := domain.BiddingFinalized{
			BiddingID:    b.ID,
			LivestreamID: b.LivestreamID,
			ProductID:    b.ProductID,
			WinnerID:     b.WinnerID,
			WinnerName:   b.WinnerName,
			Amount:       b.Amount,
			Reason:       b.Reason,
			EndedAt:      now,
		}
		if err := u.publisher.PublishBiddingFinalized(ctx, event); err != nil {
			u.log.Warn("could not publish finalized round", "bidding_id", b.ID, "error", err)
		}
	}
	return b, nil
}

// DeductCredit meters one unit from a live livestream. Livestreams that are
// not live, or have no credits left, report their balance without a
// deduction.
func (u *Usecase) DeductCredit(ctx context.Context, livestreamID string) (domain.CreditDeduction, error) {
	ls, err := u.repo.GetLivestream(ctx, livestreamID)
	if err != nil {
		return domain.CreditDeduction{}, err
	}
	if !ls.IsLive() {
		return domain.CreditDeduction{
			RemainingCredits:     ls.CreditsBalance,
			TotalCreditsConsumed: ls.TotalCreditsConsumed,
		}, nil
	}
	d, err := u.repo.DeductCredit(ctx, livestreamID)
	if errors.Is(err, domain.ErrInsufficientCredits) {
		return domain.CreditDeduction{TotalCreditsConsumed: ls.TotalCreditsConsumed}, nil
	}
	if err != nil {
		return domain.CreditDeduction{}, fmt.Errorf("error deducting credit: %w", err)
	}
	u.log.Info("credit deducted", "livestream_id", livestreamID, "remaining", d.RemainingCredits)
	return d, nil
}

// ListMessages returns the most recent chat, oldest first. A non-empty
// pattern is matched as a regular expression instead.
func (u *Usecase) ListMessages(ctx context.Context, livestreamID, pattern string, limit int) ([]domain.Message, error) {
	if pattern != "" {
		return u.repo.ListMessagesByQuery(ctx, livestreamID, pattern)
	}
	if limit <= 0 || limit > messageLimit {
		limit = messageLimit
	}
	return u.repo.ListMessages(ctx, livestreamID, limit)
}
