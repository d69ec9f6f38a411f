package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Identity is what the chat token tells about the user of a connection.
type Identity struct {
	Schema       string
	UserID       string
	Role         string
	GroupIDs     []string
	ActiveChatID string
}

// Client is one websocket connection. Writes go through the send channel
// which is drained by a single writer goroutine.
type Client struct {
	ID       string
	identity Identity
	groups   map[string]struct{}
	conn     *websocket.Conn
	send     chan []byte

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, identity Identity) *Client {
	groups := make(map[string]struct{}, len(identity.GroupIDs))
	for _, g := range identity.GroupIDs {
		groups[g] = struct{}{}
	}
	return &Client{
		ID:       uuid.NewString(),
		identity: identity,
		groups:   groups,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
	}
}

// Send queues a message. A client that can't keep up is closed.
func (c *Client) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		log.Warnf("send buffer of socket %s is full, closing", c.ID)
		c.closed = true
		close(c.send)
		return false
	}
}

// Close flushes the queued messages and closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) isStaff() bool {
	return c.identity.Role == "editor" || c.identity.Role == "admin"
}

// receives broadcasts limited to the given groups
func (c *Client) inGroups(groupIDs []string) bool {
	if c.identity.Role == "admin" {
		return true
	}
	for _, g := range groupIDs {
		if _, ok := c.groups[g]; ok {
			return true
		}
	}
	return false
}

func (c *Client) read() ([]byte, error) {
	_, raw, err := c.conn.ReadMessage()
	return raw, err
}

func (c *Client) writePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debugf("write to socket %s: %v", c.ID, err)
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
