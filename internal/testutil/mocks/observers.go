package mocks

import (
	"context"
	"sync"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
)

// Publisher records published events in order
type Publisher struct {
	mu     sync.Mutex
	events []auction.Event
}

// NewPublisher creates an empty recording publisher
func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(event auction.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// Events returns a snapshot of everything published so far
func (p *Publisher) Events() []auction.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]auction.Event(nil), p.events...)
}

// EventsOfType filters the recorded events by type
func (p *Publisher) EventsOfType(t auction.EventType) []auction.Event {
	var out []auction.Event
	for _, ev := range p.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Notifier records notification calls. The engine notifies from goroutines,
// so waiters should poll with require.Eventually.
type Notifier struct {
	mu      sync.Mutex
	outbid  []auction.Bid
	winners []*auction.Auction
}

// NewNotifier creates a recording notifier
func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) NotifyOutbid(_ context.Context, _ *auction.Auction, previous auction.Bid) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outbid = append(n.outbid, previous)
}

func (n *Notifier) NotifyWinner(_ context.Context, a *auction.Auction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.winners = append(n.winners, a)
}

// Outbid returns the recorded outbid notifications
func (n *Notifier) Outbid() []auction.Bid {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]auction.Bid(nil), n.outbid...)
}

// Winners returns the recorded winner notifications
func (n *Notifier) Winners() []*auction.Auction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*auction.Auction(nil), n.winners...)
}
