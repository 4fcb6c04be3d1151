package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ponyo877/livebid/logger"
	"github.com/ponyo877/livebid/server/domain"
	"github.com/ponyo877/livebid/server/repository"
	"github.com/ponyo877/livebid/server/usecase"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.BiddingFinalized
}

func (p *fakePublisher) PublishBiddingFinalized(_ context.Context, event domain.BiddingFinalized) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) published() []domain.BiddingFinalized {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.BiddingFinalized(nil), p.events...)
}

func newTestRepository(t *testing.T) usecase.Repository {
	t.Helper()
	db, err := repository.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repository.NewRepository(db)
}

func newTestUsecase(t *testing.T) (*usecase.Usecase, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	return usecase.NewUsecase(newTestRepository(t), pub, logger.Discard()), pub
}

func TestCreateLivestream(t *testing.T) {
	uc, _ := newTestUsecase(t)
	tests := []struct {
		name    string
		title   string
		credits int
		wantErr error
	}{
		{name: "ok", title: "Sunday sale", credits: 4},
		{name: "blank title", title: "  ", credits: 4, wantErr: domain.ErrInvalidInput},
		{name: "negative credits", title: "x", credits: -1, wantErr: domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ls, err := uc.CreateLivestream(context.Background(), tt.title, tt.credits)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateLivestream() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && (ls.ID == "" || ls.Status != domain.LivestreamScheduled) {
				t.Errorf("CreateLivestream() = %+v", ls)
			}
		})
	}
}

func TestLivestreamLifecycle(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUsecase(t)

	broke, _ := uc.CreateLivestream(ctx, "no credits", 0)
	if _, err := uc.StartLivestream(ctx, broke.ID); !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Errorf("StartLivestream(0 credits) error = %v, want %v", err, domain.ErrInsufficientCredits)
	}

	ls, _ := uc.CreateLivestream(ctx, "Sunday sale", 2)
	started, err := uc.StartLivestream(ctx, ls.ID)
	if err != nil {
		t.Fatalf("StartLivestream() error = %v", err)
	}
	if !started.IsLive() || started.StartedAt == nil {
		t.Errorf("StartLivestream() = %+v", started)
	}
	again, err := uc.StartLivestream(ctx, ls.ID)
	if err != nil || !again.StartedAt.Equal(*started.StartedAt) {
		t.Errorf("second StartLivestream() = %+v, %v, want unchanged", again, err)
	}

	ended, err := uc.EndLivestream(ctx, ls.ID)
	if err != nil || ended.Status != domain.LivestreamEnded {
		t.Fatalf("EndLivestream() = %+v, %v", ended, err)
	}
	if _, err := uc.EndLivestream(ctx, ls.ID); err != nil {
		t.Errorf("second EndLivestream() error = %v", err)
	}
	if _, err := uc.StartLivestream(ctx, ls.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("StartLivestream(ended) error = %v, want %v", err, domain.ErrConflict)
	}
	if _, err := uc.GetLivestream(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetLivestream(missing) error = %v, want %v", err, domain.ErrNotFound)
	}
}

func TestBidding(t *testing.T) {
	ctx := context.Background()
	uc, pub := newTestUsecase(t)

	ls, _ := uc.CreateLivestream(ctx, "Sunday sale", 2)
	mug, err := uc.AddProduct(ctx, ls.ID, "Mug", 100)
	if err != nil {
		t.Fatalf("AddProduct() error = %v", err)
	}
	if _, err := uc.AddProduct(ctx, ls.ID, "Free", 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("AddProduct(price 0) error = %v, want %v", err, domain.ErrInvalidInput)
	}
	if _, err := uc.StartBidding(ctx, ls.ID, mug.ID, 0, 60); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("StartBidding(not live) error = %v, want %v", err, domain.ErrConflict)
	}
	uc.StartLivestream(ctx, ls.ID)

	tests := []struct {
		name     string
		product  string
		duration int
		wantErr  error
	}{
		{name: "too short", product: mug.ID, duration: 5, wantErr: domain.ErrInvalidInput},
		{name: "too long", product: mug.ID, duration: 3601, wantErr: domain.ErrInvalidInput},
		{name: "unknown product", product: "nope", duration: 60, wantErr: domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := uc.StartBidding(ctx, ls.ID, tt.product, 0, tt.duration); !errors.Is(err, tt.wantErr) {
				t.Errorf("StartBidding() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	round, err := uc.StartBidding(ctx, ls.ID, mug.ID, 0, 3600)
	if err != nil {
		t.Fatalf("StartBidding() error = %v", err)
	}
	if round.StartingPrice != 100 {
		t.Errorf("StartingPrice = %v, want the product price 100", round.StartingPrice)
	}

	if _, err := uc.EndBidding(ctx, round.ID, usecase.BiddingResult{WinnerID: "v1", Amount: 50}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("EndBidding(below start) error = %v, want %v", err, domain.ErrInvalidInput)
	}
	result := usecase.BiddingResult{WinnerID: "v1", WinnerName: "Asha", Amount: 750, Reason: "manual"}
	ended, err := uc.EndBidding(ctx, round.ID, result)
	if err != nil {
		t.Fatalf("EndBidding() error = %v", err)
	}
	if ended.Status != domain.BiddingEnded || ended.Amount != 750 {
		t.Errorf("EndBidding() = %+v", ended)
	}
	if _, err := uc.EndBidding(ctx, round.ID, result); err != nil {
		t.Errorf("repeated EndBidding() error = %v", err)
	}
	if got := pub.published(); len(got) != 1 || got[0].BiddingID != round.ID || got[0].WinnerID != "v1" {
		t.Errorf("published = %+v, want one event for %s", got, round.ID)
	}

	// An unfinalized round does not block the next one.
	uc.StartBidding(ctx, ls.ID, mug.ID, 120, 60)
	next, err := uc.StartBidding(ctx, ls.ID, mug.ID, 120, 60)
	if err != nil {
		t.Fatalf("StartBidding(after stale) error = %v", err)
	}
	uc.EndLivestream(ctx, ls.ID)
	if _, err := uc.EndBidding(ctx, next.ID, usecase.BiddingResult{Reason: "manual"}); err != nil {
		t.Errorf("EndBidding(cancelled) error = %v", err)
	}
	if got := pub.published(); len(got) != 1 {
		t.Errorf("published %d events, want cancelled rounds left unpublished", len(got))
	}
}

func TestDeductCredit(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUsecase(t)
	ls, _ := uc.CreateLivestream(ctx, "Sunday sale", 1)

	d, err := uc.DeductCredit(ctx, ls.ID)
	if err != nil || d.Deducted {
		t.Errorf("DeductCredit(scheduled) = %+v, %v, want no deduction", d, err)
	}

	uc.StartLivestream(ctx, ls.ID)
	tests := []struct {
		deducted  bool
		remaining int
		consumed  int
	}{
		{deducted: true, remaining: 0, consumed: 1},
		{deducted: false, remaining: 0, consumed: 1},
	}
	for i, tt := range tests {
		d, err := uc.DeductCredit(ctx, ls.ID)
		if err != nil {
			t.Fatalf("call %d: DeductCredit() error = %v", i, err)
		}
		if d.Deducted != tt.deducted || d.RemainingCredits != tt.remaining || d.TotalCreditsConsumed != tt.consumed {
			t.Errorf("call %d: DeductCredit() = %+v, want %+v", i, d, tt)
		}
	}
}

func TestListMessages(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	uc := usecase.NewUsecase(repo, nil, logger.Discard())

	session := domain.StreamSession{ParticipantID: "v1", Name: "Asha", LivestreamID: "ls1", Role: "viewer"}
	for i, content := range []string{"hi", "price?", "hi again"} {
		m := domain.NewMessage(string(rune('a'+i)), session, content, time.Date(2025, 3, 1, 10, 0, i, 0, time.UTC))
		if err := repo.CreateMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	all, err := uc.ListMessages(ctx, "ls1", "", 0)
	if err != nil || len(all) != 3 {
		t.Errorf("ListMessages() = %d, %v, want 3", len(all), err)
	}
	found, err := uc.ListMessages(ctx, "ls1", "^hi", 0)
	if err != nil || len(found) != 2 {
		t.Errorf("ListMessages(^hi) = %d, %v, want 2", len(found), err)
	}
}
