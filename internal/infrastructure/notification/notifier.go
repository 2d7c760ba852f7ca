package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
)

// ErrUnknownRecipient indicates the directory has no address for an account
var ErrUnknownRecipient = errors.New("no address for recipient")

// Directory resolves account IDs to email addresses
type Directory interface {
	EmailFor(ctx context.Context, accountID uuid.UUID) (string, error)
}

// Notifier composes and sends auction emails. Delivery failures are logged
// and swallowed: notifications are best-effort and must never fail a bid or
// a lifecycle transition.
type Notifier struct {
	sender    Sender
	directory Directory
	logger    *zap.Logger
}

// NewNotifier creates a notifier
func NewNotifier(sender Sender, directory Directory, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender:    sender,
		directory: directory,
		logger:    logger,
	}
}

// NotifyOutbid tells the previously leading bidder their bid was surpassed
func (n *Notifier) NotifyOutbid(ctx context.Context, a *auction.Auction, previous auction.Bid) {
	msg := Message{
		Subject: fmt.Sprintf("You have been outbid on %q", a.Title),
		Body: fmt.Sprintf(
			"Your bid of %s on %q is no longer the highest. The price is now %s. The auction ends at %s.",
			previous.Amount, a.Title, a.CurrentPrice, a.EndTime.Format("2006-01-02 15:04 MST")),
	}
	n.send(ctx, previous.BidderID, a.ID, msg)
}

// NotifyWinner tells the winning bidder the auction closed in their favor
func (n *Notifier) NotifyWinner(ctx context.Context, a *auction.Auction) {
	if a.WinnerID == nil {
		return
	}
	msg := Message{
		Subject: fmt.Sprintf("You won the auction for %q", a.Title),
		Body: fmt.Sprintf(
			"Congratulations, your bid of %s won the auction for %q.",
			a.CurrentPrice, a.Title),
	}
	n.send(ctx, *a.WinnerID, a.ID, msg)
}

func (n *Notifier) send(ctx context.Context, accountID, auctionID uuid.UUID, msg Message) {
	to, err := n.directory.EmailFor(ctx, accountID)
	if err != nil {
		if !errors.Is(err, ErrUnknownRecipient) {
			n.logger.Warn("recipient lookup failed",
				zap.String("account_id", accountID.String()),
				zap.String("auction_id", auctionID.String()),
				zap.Error(err))
		}
		return
	}
	msg.To = to

	if err := n.sender.Send(ctx, msg); err != nil {
		n.logger.Warn("notification delivery failed",
			zap.String("account_id", accountID.String()),
			zap.String("auction_id", auctionID.String()),
			zap.Error(err))
	}
}

// noopDirectory resolves nothing. Used when no account directory is wired.
type noopDirectory struct{}

// NewNoopDirectory creates a directory with no entries
func NewNoopDirectory() Directory {
	return noopDirectory{}
}

func (noopDirectory) EmailFor(context.Context, uuid.UUID) (string, error) {
	return "", ErrUnknownRecipient
}
