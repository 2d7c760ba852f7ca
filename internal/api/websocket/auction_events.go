package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
	"github.com/bidhaus/auction-backend/internal/infrastructure/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// ClientAction is a message from a client controlling its subscriptions
type ClientAction struct {
	Action    string    `json:"action"`
	AuctionID uuid.UUID `json:"auction_id"`
}

// ServerMessage is the envelope for everything sent to a client
type ServerMessage struct {
	Type      string         `json:"type"`
	AuctionID *uuid.UUID     `json:"auction_id,omitempty"`
	Event     *auction.Event `json:"event,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// AuctionClient is one WebSocket connection watching auction topics
type AuctionClient struct {
	ID     uuid.UUID
	UserID uuid.UUID

	conn   *websocket.Conn
	send   chan ServerMessage
	hub    *events.Hub
	logger *zap.Logger

	mu            sync.Mutex
	subscriptions map[uuid.UUID]func()
	closed        bool
}

// NewAuctionClient wraps an upgraded connection
func NewAuctionClient(conn *websocket.Conn, hub *events.Hub, userID uuid.UUID, logger *zap.Logger) *AuctionClient {
	return &AuctionClient{
		ID:            uuid.New(),
		UserID:        userID,
		conn:          conn,
		send:          make(chan ServerMessage, sendBuffer),
		hub:           hub,
		logger:        logger,
		subscriptions: make(map[uuid.UUID]func()),
	}
}

// ReadPump reads join/leave commands until the connection drops
func (c *AuctionClient) ReadPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error",
					zap.String("client_id", c.ID.String()),
					zap.Error(err))
			}
			return
		}

		var action ClientAction
		if err := json.Unmarshal(message, &action); err != nil {
			c.enqueue(ServerMessage{Type: "error", Message: "invalid message"})
			continue
		}

		switch action.Action {
		case "join":
			c.join(action.AuctionID)
		case "leave":
			c.leave(action.AuctionID)
		default:
			c.enqueue(ServerMessage{Type: "error", Message: "unknown action"})
		}
	}
}

// WritePump serializes outbound messages and keeps the connection alive
func (c *AuctionClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// join subscribes the client to one auction's event stream
func (c *AuctionClient) join(auctionID uuid.UUID) {
	if auctionID == uuid.Nil {
		c.enqueue(ServerMessage{Type: "error", Message: "auction_id is required"})
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, already := c.subscriptions[auctionID]; already {
		c.mu.Unlock()
		return
	}

	ch, unsubscribe := c.hub.Subscribe(auction.Topic(auctionID))
	c.subscriptions[auctionID] = unsubscribe
	c.mu.Unlock()

	go c.forward(ch)

	c.enqueue(ServerMessage{Type: "joined", AuctionID: &auctionID})
	c.logger.Debug("client joined auction",
		zap.String("client_id", c.ID.String()),
		zap.String("auction_id", auctionID.String()))
}

// leave drops the client's subscription to one auction
func (c *AuctionClient) leave(auctionID uuid.UUID) {
	c.mu.Lock()
	unsubscribe, ok := c.subscriptions[auctionID]
	if ok {
		delete(c.subscriptions, auctionID)
	}
	c.mu.Unlock()

	if ok {
		unsubscribe()
		c.enqueue(ServerMessage{Type: "left", AuctionID: &auctionID})
	}
}

// forward relays hub events to the client until the subscription closes
func (c *AuctionClient) forward(ch <-chan auction.Event) {
	for ev := range ch {
		event := ev
		c.enqueue(ServerMessage{Type: "event", AuctionID: &event.AuctionID, Event: &event})
	}
}

// enqueue delivers without blocking; a full buffer drops the message
func (c *AuctionClient) enqueue(msg ServerMessage) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping message for slow websocket client",
			zap.String("client_id", c.ID.String()),
			zap.String("type", msg.Type))
	}
}

func (c *AuctionClient) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subscriptions
	c.subscriptions = make(map[uuid.UUID]func())
	c.mu.Unlock()

	for _, unsubscribe := range subs {
		unsubscribe()
	}
	// send stays open: forward goroutines may still be draining their hub
	// channels. WritePump exits through the closed connection instead.
	c.conn.Close()
}
