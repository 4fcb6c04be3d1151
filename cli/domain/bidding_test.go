package domain

import (
	"errors"
	"testing"
	"time"
)

var testProducts = []Product{
	{ID: "p1", Name: "Silk saree", Price: 100},
	{ID: "p2", Name: "Brass lamp", Price: 250},
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMachine() (*BiddingMachine, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewBiddingMachine(testProducts).WithClock(clock.Now), clock
}

func TestStartRoundValidation(t *testing.T) {
	tests := []struct {
		name      string
		productID string
		duration  int
		wantErr   error
		wantClass error
	}{
		{"below minimum", "p1", 5, ErrInvalidDuration, ErrValidation},
		{"minimum", "p1", 10, nil, nil},
		{"maximum", "p1", 3600, nil, nil},
		{"above maximum", "p1", 3601, ErrInvalidDuration, ErrValidation},
		{"unknown product", "nope", 60, ErrInvalidProduct, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMachine()
			round, err := m.StartRound(tt.productID, 100, tt.duration)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("StartRound() error = %v", err)
				}
				if !round.IsActive() || round.Remaining != tt.duration {
					t.Errorf("StartRound() = %+v, want active with %ds remaining", round, tt.duration)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("StartRound() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, tt.wantClass) {
				t.Errorf("StartRound() error = %v, want class %v", err, tt.wantClass)
			}
			if _, active := m.Active(); active {
				t.Error("rejected StartRound() left an active round")
			}
		})
	}
}

func TestStartRoundWhileActive(t *testing.T) {
	m, _ := newTestMachine()
	first, err := m.StartRound("p1", 100, 60)
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.StartRound("p2", 100, 60)
	if !errors.Is(err, ErrRoundAlreadyActive) || !errors.Is(err, ErrConflict) {
		t.Fatalf("second StartRound() error = %v, want %v", err, ErrRoundAlreadyActive)
	}
	if got := m.Round(); got.ID != first.ID || got.Product.ID != "p1" {
		t.Errorf("conflicting StartRound() replaced the active round: %+v", got)
	}
}

func TestStartRoundDefaultsToListPrice(t *testing.T) {
	m, _ := newTestMachine()
	round, err := m.StartRound("p2", 0, 30)
	if err != nil {
		t.Fatal(err)
	}
	if round.StartingPrice != 250 {
		t.Errorf("StartingPrice = %v, want 250", round.StartingPrice)
	}
}

func TestRecordBidLeaderAndDuplicates(t *testing.T) {
	m, clock := newTestMachine()
	if _, err := m.StartRound("p1", 100, 60); err != nil {
		t.Fatal(err)
	}

	if err := m.RecordBid(NewBid(500, "alice", "Alice", clock.Now())); err != nil {
		t.Fatalf("RecordBid(500) error = %v", err)
	}
	clock.Advance(time.Second)
	if err := m.RecordBid(NewBid(750, "bob", "Bob", clock.Now())); err != nil {
		t.Fatalf("RecordBid(750) error = %v", err)
	}
	leader, ok := m.Leader()
	if !ok || leader.Amount != 750 || leader.BidderID != "bob" {
		t.Fatalf("Leader() = %+v, %v; want bob at 750", leader, ok)
	}

	clock.Advance(3 * time.Second)
	err := m.RecordBid(NewBid(750, "bob", "Bob", clock.Now()))
	if !errors.Is(err, ErrDuplicateBid) {
		t.Errorf("replayed RecordBid() error = %v, want %v", err, ErrDuplicateBid)
	}
	if m.BidCount() != 2 {
		t.Errorf("BidCount() = %d, want 2", m.BidCount())
	}

	clock.Advance(10 * time.Second)
	if err := m.RecordBid(NewBid(750, "bob", "Bob", clock.Now())); err != nil {
		t.Errorf("RecordBid() outside window error = %v", err)
	}
	if m.BidCount() != 3 {
		t.Errorf("BidCount() = %d, want 3", m.BidCount())
	}
}

func TestRecordBidDuplicateOutOfOrder(t *testing.T) {
	m, clock := newTestMachine()
	if _, err := m.StartRound("p1", 100, 60); err != nil {
		t.Fatal(err)
	}
	ts := clock.Now()
	if err := m.RecordBid(NewBid(300, "alice", "Alice", ts)); err != nil {
		t.Fatal(err)
	}
	// a replay stamped slightly earlier than the original still matches
	if err := m.RecordBid(NewBid(300, "alice", "Alice", ts.Add(-2*time.Second))); !errors.Is(err, ErrDuplicateBid) {
		t.Errorf("RecordBid() error = %v, want %v", err, ErrDuplicateBid)
	}
}

func TestRecordBidRejections(t *testing.T) {
	m, clock := newTestMachine()
	if err := m.RecordBid(NewBid(500, "alice", "Alice", clock.Now())); !errors.Is(err, ErrNoActiveRound) {
		t.Errorf("RecordBid() without round error = %v, want %v", err, ErrNoActiveRound)
	}
	if _, err := m.StartRound("p1", 100, 60); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		bid  Bid
		want error
	}{
		{"below starting price", NewBid(50, "alice", "Alice", clock.Now()), ErrBidTooLow},
		{"missing bidder", NewBid(500, "", "", clock.Now()), ErrInvalidBid},
		{"zero amount", NewBid(0, "alice", "Alice", clock.Now()), ErrInvalidBid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.RecordBid(tt.bid); !errors.Is(err, tt.want) {
				t.Errorf("RecordBid() error = %v, want %v", err, tt.want)
			}
		})
	}
	if m.BidCount() != 0 {
		t.Errorf("BidCount() = %d, want 0", m.BidCount())
	}
}

func TestRankedTieBreak(t *testing.T) {
	m, clock := newTestMachine()
	if _, err := m.StartRound("p1", 100, 60); err != nil {
		t.Fatal(err)
	}
	base := clock.Now()
	// delivered out of timestamp order
	_ = m.RecordBid(NewBid(400, "late", "Late", base.Add(2*time.Second)))
	_ = m.RecordBid(NewBid(400, "early", "Early", base))
	_ = m.RecordBid(NewBid(200, "low", "Low", base.Add(time.Second)))

	bids := m.Bids()
	if bids[0].BidderID != "late" {
		t.Errorf("Bids()[0] = %s, want acceptance order", bids[0].BidderID)
	}
	ranked := m.Ranked()
	want := []string{"early", "late", "low"}
	for i, id := range want {
		if ranked[i].BidderID != id {
			t.Errorf("Ranked()[%d] = %s, want %s", i, ranked[i].BidderID, id)
		}
	}
}

func TestCountdownNoBids(t *testing.T) {
	m, _ := newTestMachine()
	if _, err := m.StartRound("p1", 100, 60); err != nil {
		t.Fatal(err)
	}
	expired := false
	for i := 0; i < 60; i++ {
		if expired {
			t.Fatalf("round expired early at tick %d", i)
		}
		expired = m.Tick()
	}
	if !expired {
		t.Fatal("round did not expire after 60 ticks")
	}
	reason := m.ExpiryReason()
	if reason != EndNoBids {
		t.Errorf("ExpiryReason() = %v, want %v", reason, EndNoBids)
	}
	result, ok := m.EndRound(reason)
	if !ok {
		t.Fatal("EndRound() = false")
	}
	if result.HasWinner() {
		t.Errorf("winner = %+v, want none", result.Winner)
	}
	if m.Tick() {
		t.Error("Tick() after end reported expiry")
	}
}

func TestSetRemainingOverridesLocalClock(t *testing.T) {
	m, _ := newTestMachine()
	if m.SetRemaining(5) {
		t.Error("SetRemaining() without round reported expiry")
	}
	if _, err := m.StartRound("p1", 100, 60); err != nil {
		t.Fatal(err)
	}
	m.Tick()
	m.Tick()
	if m.SetRemaining(42) {
		t.Error("SetRemaining(42) reported expiry")
	}
	if got := m.Round().Remaining; got != 42 {
		t.Errorf("Remaining = %d, want 42", got)
	}
	m.Tick()
	if got := m.Round().Remaining; got != 41 {
		t.Errorf("Remaining after tick = %d, want 41", got)
	}
	if !m.SetRemaining(-3) {
		t.Error("SetRemaining(-3) did not report expiry")
	}
}

func TestEndRoundIdempotent(t *testing.T) {
	m, clock := newTestMachine()
	if _, err := m.StartRound("p1", 100, 60); err != nil {
		t.Fatal(err)
	}
	_ = m.RecordBid(NewBid(900, "carol", "Carol", clock.Now()))

	result, ok := m.EndRound(EndManual)
	if !ok {
		t.Fatal("first EndRound() = false")
	}
	if result.Winner == nil || result.Winner.BidderID != "carol" || result.BidCount != 1 {
		t.Errorf("EndRound() = %+v, want carol winning one bid", result)
	}
	if result.Round.Status != RoundEnded {
		t.Errorf("Round.Status = %v, want ended", result.Round.Status)
	}
	if _, ok := m.EndRound(EndTimeout); ok {
		t.Error("second EndRound() = true, want no-op")
	}
	if m.BidCount() != 0 {
		t.Errorf("bids not cleared: %d", m.BidCount())
	}

	next, err := m.StartRound("p2", 0, 20)
	if err != nil {
		t.Fatalf("StartRound() after end error = %v", err)
	}
	if next.ID == result.Round.ID {
		t.Error("new round reused the previous id")
	}
}

func TestSetRemoteID(t *testing.T) {
	m, _ := newTestMachine()
	round, _ := m.StartRound("p1", 100, 60)
	if m.SetRemoteID("other", "42") {
		t.Error("SetRemoteID() matched a foreign round")
	}
	if !m.SetRemoteID(round.ID, "42") || m.Round().RemoteID != "42" {
		t.Errorf("RemoteID = %q, want 42", m.Round().RemoteID)
	}
}
