package auction

import (
	"github.com/google/uuid"

	"github.com/bidhaus/auction-backend/internal/domain/errors"
	"github.com/bidhaus/auction-backend/internal/domain/values"
)

// ValidateBid decides whether a proposed bid is acceptable against the
// current auction state. Checks run in a fixed order: status, self-bid,
// currency, amount. The minimum acceptable amount is the current price plus
// one bid increment; an amount equal to the current price is rejected.
//
// Pure read, no side effects; safe to call concurrently.
func ValidateBid(a *Auction, bidderID uuid.UUID, amount values.Money) error {
	if a.Status != StatusActive {
		return errors.ErrBidNotActive
	}
	if bidderID == a.OwnerID {
		return errors.ErrBidSelf
	}
	// Money comparisons panic across currencies; reject the mismatch first
	if amount.Currency() != a.CurrentPrice.Currency() {
		return errors.ErrBidCurrency
	}
	if !amount.GreaterThan(a.CurrentPrice) {
		return errors.ErrBidTooLow
	}
	return nil
}
