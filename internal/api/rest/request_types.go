package rest

import "time"

// CreateAuctionRequest is the payload for POST /auctions
type CreateAuctionRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"required,max=5000"`
	StartPrice  float64   `json:"start_price" validate:"gte=0"`
	Currency    string    `json:"currency" validate:"omitempty,iso4217"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

// UpdateAuctionRequest is the payload for PUT /auctions/{id}. Absent fields
// are left unchanged.
type UpdateAuctionRequest struct {
	Title       *string    `json:"title" validate:"omitempty,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	StartPrice  *float64   `json:"start_price" validate:"omitempty,gte=0"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
}

// PlaceBidRequest is the payload for POST /auctions/{id}/bids
type PlaceBidRequest struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency" validate:"omitempty,iso4217"`
}
