// Package api holds the JSON request and response bodies of the livestream
// backend, shared by the server handlers and the seller-side client.
package api

import "time"

// Livestream status values
const (
	StatusScheduled = "scheduled"
	StatusLive      = "live"
	StatusEnded     = "ended"
	StatusCancelled = "cancelled"
)

// Request types

type CreateLivestreamRequest struct {
	Title   string `json:"title"`
	Credits int    `json:"credits"`
}

type AddProductRequest struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type StartBiddingRequest struct {
	Product       string  `json:"product"`
	StartingPrice float64 `json:"starting_price"`
	TimerDuration int     `json:"timer_duration"`
}

// Winner fields are empty when the round closed without bids.
type EndBiddingRequest struct {
	WinnerID   string  `json:"winner_id,omitempty"`
	WinnerName string  `json:"winner_name,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// Response types

type Livestream struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Status               string     `json:"status"`
	CreditsBalance       int        `json:"credits_balance"`
	TotalCreditsConsumed int        `json:"total_credits_consumed"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	EndedAt              *time.Time `json:"ended_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

type Product struct {
	ID           string  `json:"id"`
	LivestreamID string  `json:"livestream_id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
}

type StartBiddingResponse struct {
	ID string `json:"id"`
}

type Ack struct {
	OK bool `json:"ok"`
}

type CreditDeductionResponse struct {
	CreditDeducted       bool `json:"credit_deducted"`
	RemainingCredits     int  `json:"remaining_credits"`
	TotalCreditsConsumed int  `json:"total_credits_consumed"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}
