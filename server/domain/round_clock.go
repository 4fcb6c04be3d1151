package domain

const (
	MinRoundDuration = 10
	MaxRoundDuration = 3600
)

// RoundClock is the hub's authoritative countdown for one bidding round.
// Callers serialize access.
type RoundClock struct {
	BiddingID     string
	ProductID     string
	StartingPrice float64
	Duration      int
	Remaining     int
	expired       bool
}

func NewRoundClock(biddingID, productID string, startingPrice float64, duration int) (*RoundClock, error) {
	if biddingID == "" {
		return nil, ErrInvalidInput
	}
	if duration < MinRoundDuration || duration > MaxRoundDuration {
		return nil, ErrInvalidInput
	}
	return &RoundClock{
		BiddingID:     biddingID,
		ProductID:     productID,
		StartingPrice: startingPrice,
		Duration:      duration,
		Remaining:     duration,
	}, nil
}

// Tick counts down one second. expired is true only on the tick that
// reaches zero.
func (c *RoundClock) Tick() (remaining int, expired bool) {
	if c.expired {
		return 0, false
	}
	c.Remaining--
	if c.Remaining <= 0 {
		c.Remaining = 0
		c.expired = true
		return 0, true
	}
	return c.Remaining, false
}

func (c *RoundClock) Expired() bool {
	return c.expired
}

// Accepts reports whether a bid naming biddingID belongs to this round and
// the round is still open. An empty id means the current round.
func (c *RoundClock) Accepts(biddingID string) bool {
	if c.expired {
		return false
	}
	return biddingID == "" || biddingID == c.BiddingID
}
