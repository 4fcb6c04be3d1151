package domain

import (
	"math"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	MinRoundDuration   = 10
	MaxRoundDuration   = 3600
	DuplicateBidWindow = 5 * time.Second
)

type RoundStatus int

const (
	RoundInactive RoundStatus = iota
	RoundActive
	RoundEnded
)

func (s RoundStatus) String() string {
	switch s {
	case RoundInactive:
		return "inactive"
	case RoundActive:
		return "active"
	case RoundEnded:
		return "ended"
	default:
		return "unknown"
	}
}

type EndReason int

const (
	EndTimeout EndReason = iota
	EndManual
	EndNoBids
	// EndRemote marks a round the hub already ended; nothing is announced
	// or finalized locally.
	EndRemote
)

func (r EndReason) String() string {
	switch r {
	case EndTimeout:
		return "timeout"
	case EndManual:
		return "manual"
	case EndNoBids:
		return "no-bids"
	case EndRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// BiddingRound is one timed bidding window. Duration and Remaining are whole
// seconds.
type BiddingRound struct {
	ID            string
	RemoteID      string
	Product       Product
	StartingPrice float64
	Duration      int
	StartedAt     time.Time
	Remaining     int
	Status        RoundStatus
}

func (r BiddingRound) IsActive() bool {
	return r.Status == RoundActive
}

type Bid struct {
	Amount     float64
	BidderID   string
	BidderName string
	Timestamp  time.Time
}

func NewBid(amount float64, bidderID, bidderName string, timestamp time.Time) Bid {
	return Bid{
		Amount:     amount,
		BidderID:   bidderID,
		BidderName: bidderName,
		Timestamp:  timestamp,
	}
}

func (b Bid) duplicates(other Bid) bool {
	if b.BidderID != other.BidderID || b.Amount != other.Amount {
		return false
	}
	delta := b.Timestamp.Sub(other.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	return delta <= DuplicateBidWindow
}

type RoundResult struct {
	Round    BiddingRound
	Reason   EndReason
	Winner   *Bid
	BidCount int
}

func (r RoundResult) HasWinner() bool {
	return r.Winner != nil
}

// BiddingMachine runs at most one active round at a time. It is not safe for
// concurrent use; the session controller serializes every call.
type BiddingMachine struct {
	products map[string]Product
	round    BiddingRound
	bids     []Bid
	now      func() time.Time
}

func NewBiddingMachine(products []Product) *BiddingMachine {
	m := &BiddingMachine{now: time.Now}
	m.SetCatalog(products)
	return m
}

// WithClock replaces the wall clock; tests drive time explicitly.
func (m *BiddingMachine) WithClock(now func() time.Time) *BiddingMachine {
	m.now = now
	return m
}

func (m *BiddingMachine) SetCatalog(products []Product) {
	m.products = make(map[string]Product, len(products))
	for _, p := range products {
		m.products[p.ID] = p
	}
}

// Catalog lists the auctionable products ordered by id.
func (m *BiddingMachine) Catalog() []Product {
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *BiddingMachine) Product(id string) (Product, bool) {
	p, ok := m.products[id]
	return p, ok
}

// StartRound opens a new round. A non-positive starting price falls back to
// the product's list price.
func (m *BiddingMachine) StartRound(productID string, startingPrice float64, duration int) (BiddingRound, error) {
	product, ok := m.products[productID]
	if !ok {
		return BiddingRound{}, ErrInvalidProduct
	}
	if duration < MinRoundDuration || duration > MaxRoundDuration {
		return BiddingRound{}, ErrInvalidDuration
	}
	if m.round.IsActive() {
		return BiddingRound{}, ErrRoundAlreadyActive
	}
	if startingPrice <= 0 {
		startingPrice = product.Price
	}

	m.round = BiddingRound{
		ID:            ulid.Make().String(),
		Product:       product,
		StartingPrice: startingPrice,
		Duration:      duration,
		StartedAt:     m.now(),
		Remaining:     duration,
		Status:        RoundActive,
	}
	m.bids = nil
	return m.round, nil
}

// Round returns the current or most recently ended round.
func (m *BiddingMachine) Round() BiddingRound {
	return m.round
}

func (m *BiddingMachine) Active() (BiddingRound, bool) {
	return m.round, m.round.IsActive()
}

// SetRemoteID records the id the backend assigned to a round.
func (m *BiddingMachine) SetRemoteID(localID, remoteID string) bool {
	if m.round.ID != localID {
		return false
	}
	m.round.RemoteID = remoteID
	return true
}

// Tick advances the local countdown by one second and reports whether the
// round just ran out of time.
func (m *BiddingMachine) Tick() bool {
	if !m.round.IsActive() || m.round.Remaining <= 0 {
		return false
	}
	m.round.Remaining--
	return m.round.Remaining == 0
}

// SetRemaining applies an authoritative remote timer value. It overwrites
// whatever the local countdown holds.
func (m *BiddingMachine) SetRemaining(seconds int) bool {
	if !m.round.IsActive() {
		return false
	}
	m.round.Remaining = max(seconds, 0)
	return m.round.Remaining == 0
}

// RecordBid accepts a bid into the active round. Replays of an accepted bid
// (same bidder and amount within DuplicateBidWindow) return ErrDuplicateBid.
func (m *BiddingMachine) RecordBid(bid Bid) error {
	if !m.round.IsActive() {
		return ErrNoActiveRound
	}
	if bid.BidderID == "" || bid.Amount <= 0 || math.IsNaN(bid.Amount) || math.IsInf(bid.Amount, 0) {
		return ErrInvalidBid
	}
	if bid.Amount < m.round.StartingPrice {
		return ErrBidTooLow
	}
	if bid.Timestamp.IsZero() {
		bid.Timestamp = m.now()
	}
	for _, accepted := range m.bids {
		if accepted.duplicates(bid) {
			return ErrDuplicateBid
		}
	}
	m.bids = append(m.bids, bid)
	return nil
}

// Bids returns accepted bids in acceptance order.
func (m *BiddingMachine) Bids() []Bid {
	out := make([]Bid, len(m.bids))
	copy(out, m.bids)
	return out
}

func (m *BiddingMachine) BidCount() int {
	return len(m.bids)
}

// Ranked returns accepted bids by amount descending, earliest first on ties.
func (m *BiddingMachine) Ranked() []Bid {
	out := m.Bids()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (m *BiddingMachine) Leader() (Bid, bool) {
	ranked := m.Ranked()
	if len(ranked) == 0 {
		return Bid{}, false
	}
	return ranked[0], true
}

// ExpiryReason is the reason a round ending on its clock should carry.
func (m *BiddingMachine) ExpiryReason() EndReason {
	if len(m.bids) == 0 {
		return EndNoBids
	}
	return EndTimeout
}

// EndRound closes the active round and reports the outcome. The second and
// later calls for the same round return false and change nothing.
func (m *BiddingMachine) EndRound(reason EndReason) (RoundResult, bool) {
	if !m.round.IsActive() {
		return RoundResult{}, false
	}
	result := RoundResult{Reason: reason, BidCount: len(m.bids)}
	if leader, ok := m.Leader(); ok {
		result.Winner = &leader
	}
	m.round.Status = RoundEnded
	m.round.Remaining = 0
	m.bids = nil
	result.Round = m.round
	return result, true
}
