package events

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
)

func makeBidEvent(auctionID uuid.UUID) auction.Event {
	return auction.NewBidPlacedEvent(auctionID, auction.Bid{
		ID:       uuid.New(),
		BidderID: uuid.New(),
		PlacedAt: time.Now().UTC(),
	})
}

func TestHub_PublishReachesSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	auctionID := uuid.New()
	ch, unsub := hub.Subscribe(auction.Topic(auctionID))
	defer unsub()

	sent := makeBidEvent(auctionID)
	hub.Publish(sent)

	select {
	case got := <-ch:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, auction.EventBidPlaced, got.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHub_TopicIsolation(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	watched := uuid.New()
	other := uuid.New()

	ch, unsub := hub.Subscribe(auction.Topic(watched))
	defer unsub()

	hub.Publish(makeBidEvent(other))

	select {
	case ev := <-ch:
		t.Fatalf("received event for unwatched auction: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_PerTopicOrder(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	auctionID := uuid.New()
	ch, unsub := hub.Subscribe(auction.Topic(auctionID))
	defer unsub()

	var sent []auction.Event
	for i := 0; i < 10; i++ {
		ev := makeBidEvent(auctionID)
		sent = append(sent, ev)
		hub.Publish(ev)
	}

	for i, want := range sent {
		select {
		case got := <-ch:
			assert.Equal(t, want.ID, got.ID, "event %d out of order", i)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestHub_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	auctionID := uuid.New()
	// Never drained: fills up and starts dropping
	_, unsub := hub.Subscribe(auction.Topic(auctionID))
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(makeBidEvent(auctionID))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	topic := auction.Topic(uuid.New())
	ch, unsub := hub.Subscribe(topic)
	require.Equal(t, 1, hub.SubscriberCount(topic))

	unsub()
	unsub() // idempotent

	assert.Equal(t, 0, hub.SubscriberCount(topic))

	_, open := <-ch
	assert.False(t, open)
}

func TestHub_CloseClosesAllSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop())

	ch1, _ := hub.Subscribe(auction.Topic(uuid.New()))
	ch2, _ := hub.Subscribe(auction.Topic(uuid.New()))

	hub.Close()

	_, open := <-ch1
	assert.False(t, open)
	_, open = <-ch2
	assert.False(t, open)

	// Publish after close is a no-op
	hub.Publish(makeBidEvent(uuid.New()))

	ch3, unsub := hub.Subscribe("auction:after-close")
	unsub()
	_, open = <-ch3
	assert.False(t, open)
}

func TestHub_CloseDuringUnsubscribe(t *testing.T) {
	hub := NewHub(zap.NewNop())

	const subscribers = 512
	unsubs := make([]func(), 0, subscribers)
	for i := 0; i < subscribers; i++ {
		_, unsub := hub.Subscribe(auction.Topic(uuid.New()))
		unsubs = append(unsubs, unsub)
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, unsub := range unsubs {
		wg.Add(1)
		go func(unsub func()) {
			defer wg.Done()
			<-start
			unsub()
		}(unsub)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		hub.Close()
	}()

	close(start)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("close and unsubscribe blocked on each other")
	}
}
