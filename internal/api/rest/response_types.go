package rest

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
)

// MoneyResponse renders a monetary amount
type MoneyResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// BidResponse renders a single bid
type BidResponse struct {
	ID       uuid.UUID     `json:"id"`
	BidderID uuid.UUID     `json:"bidder_id"`
	Amount   MoneyResponse `json:"amount"`
	PlacedAt time.Time     `json:"placed_at"`
}

// AuctionResponse renders a full auction view
type AuctionResponse struct {
	ID           uuid.UUID     `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	StartPrice   MoneyResponse `json:"start_price"`
	CurrentPrice MoneyResponse `json:"current_price"`
	MinimumBid   MoneyResponse `json:"minimum_bid"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	OwnerID      uuid.UUID     `json:"owner_id"`
	Status       string        `json:"status"`
	Bids         []BidResponse `json:"bids"`
	BidCount     int           `json:"bid_count"`
	WinnerID     *uuid.UUID    `json:"winner_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// AuctionListResponse renders a page of auctions
type AuctionListResponse struct {
	Auctions []AuctionResponse `json:"auctions"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PerPage  int               `json:"per_page"`
}

func toBidResponse(b auction.Bid) BidResponse {
	return BidResponse{
		ID:       b.ID,
		BidderID: b.BidderID,
		Amount: MoneyResponse{
			Amount:   b.Amount.Amount().StringFixed(2),
			Currency: b.Amount.Currency(),
		},
		PlacedAt: b.PlacedAt,
	}
}

func toAuctionResponse(a *auction.Auction) AuctionResponse {
	bids := make([]BidResponse, len(a.Bids))
	for i, b := range a.Bids {
		bids[i] = toBidResponse(b)
	}

	minimum := a.MinimumBid()

	return AuctionResponse{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		StartPrice: MoneyResponse{
			Amount:   a.StartPrice.Amount().StringFixed(2),
			Currency: a.StartPrice.Currency(),
		},
		CurrentPrice: MoneyResponse{
			Amount:   a.CurrentPrice.Amount().StringFixed(2),
			Currency: a.CurrentPrice.Currency(),
		},
		MinimumBid: MoneyResponse{
			Amount:   minimum.Amount().StringFixed(2),
			Currency: minimum.Currency(),
		},
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		OwnerID:   a.OwnerID,
		Status:    a.Status.String(),
		Bids:      bids,
		BidCount:  len(a.Bids),
		WinnerID:  a.WinnerID,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
