package domain

import "time"

type LivestreamStatus string

const (
	LivestreamScheduled LivestreamStatus = "scheduled"
	LivestreamLive      LivestreamStatus = "live"
	LivestreamEnded     LivestreamStatus = "ended"
	LivestreamCancelled LivestreamStatus = "cancelled"
)

type Livestream struct {
	ID                   string
	Title                string
	Status               LivestreamStatus
	CreditsBalance       int
	TotalCreditsConsumed int
	StartedAt            *time.Time
	EndedAt              *time.Time
	CreatedAt            time.Time
}

func (l Livestream) IsLive() bool {
	return l.Status == LivestreamLive
}

func (l Livestream) IsFinished() bool {
	return l.Status == LivestreamEnded || l.Status == LivestreamCancelled
}

type Product struct {
	ID           string
	LivestreamID string
	Name         string
	Price        float64
	CreatedAt    time.Time
}

type BiddingStatus string

const (
	BiddingActive    BiddingStatus = "active"
	BiddingEnded     BiddingStatus = "ended"
	BiddingCancelled BiddingStatus = "cancelled"
)

type Bidding struct {
	ID            string
	LivestreamID  string
	ProductID     string
	StartingPrice float64
	TimerDuration int
	Status        BiddingStatus
	WinnerID      string
	WinnerName    string
	Amount        float64
	Reason        string
	StartedAt     time.Time
	EndedAt       *time.Time
}

func (b Bidding) HasWinner() bool {
	return b.WinnerID != ""
}

// CreditDeduction is the outcome of one metering call.
type CreditDeduction struct {
	Deducted             bool
	RemainingCredits     int
	TotalCreditsConsumed int
}

// BiddingFinalized is published once a round's result is recorded.
type BiddingFinalized struct {
	BiddingID    string    `json:"bidding_id"`
	LivestreamID string    `json:"livestream_id"`
	ProductID    string    `json:"product_id"`
	WinnerID     string    `json:"winner_id,omitempty"`
	WinnerName   string    `json:"winner_name,omitempty"`
	Amount       float64   `json:"amount,omitempty"`
	Reason       string    `json:"reason"`
	EndedAt      time.Time `json:"ended_at"`
}
