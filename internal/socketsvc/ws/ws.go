package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Reply types sent to web clients.
const (
	TypeAcknowledged = "acknowledged"
	TypeError        = "error"
	TypeNotification = "notification"
	TypeStatus       = "status"
)

type reply struct {
	Type    string `json:"type"`
	Message any    `json:"message,omitempty"`
}

type clientSet map[*Client]struct{}

// Ws keeps the registries of listening, staff and chat connections.
type Ws struct {
	token   string
	chats   ChatStore
	metrics *Metrics

	mu        sync.Mutex
	listeners map[string]clientSet            // schema-channel
	staff     map[string]clientSet            // schema
	channels  map[string]map[string]clientSet // schema, chat id
}

func NewWs(token string, chats ChatStore, metrics *Metrics) *Ws {
	return &Ws{
		token:     token,
		chats:     chats,
		metrics:   metrics,
		listeners: map[string]clientSet{},
		staff:     map[string]clientSet{},
		channels:  map[string]map[string]clientSet{},
	}
}

// Attach serves a websocket connection until it is closed.
func (s *Ws) Attach(conn *websocket.Conn, identity Identity) {
	c := newClient(conn, identity)
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writePump()
	log.Debugf("%s connected", c.ID)

	mode := s.serve(c)

	s.unregister(c)
	c.Close()
	s.metrics.disconnected(mode)
	log.Debugf("%s disconnected", c.ID)
}

// serve dispatches on the first message of the connection and returns
// the mode it was served in.
func (s *Ws) serve(c *Client) string {
	raw, err := c.read()
	if err != nil {
		return ""
	}
	payload := parsePayload(raw, "authenticate", "register", "customer_chat", "staff_chat")
	if payload == nil {
		s.error(c, "invalid command: "+string(raw))
		return ""
	}

	mode := payload.Type()
	s.metrics.connected(mode)
	switch mode {
	case "authenticate":
		s.handleManage(c, payload)
	case "register":
		s.handleListen(c, payload)
	case "customer_chat":
		s.handleCustomerChat(c, payload)
	case "staff_chat":
		s.handleStaffChat(c, payload)
	}
	return mode
}

func (s *Ws) handleListen(c *Client, payload Payload) {
	schema, ok := payload.Schema()
	if !ok {
		s.error(c, "invalid schema: "+payload.Show("schema"))
		return
	}
	channel, ok := payload.Channel()
	if !ok {
		s.error(c, "invalid channel: "+payload.Show("channel"))
		return
	}

	key := schemaChannel(schema, channel)
	s.mu.Lock()
	add(s.listeners, key, c)
	s.mu.Unlock()

	s.acknowledge(c)
	log.Debugf("%s listens @ %s", c.ID, key)

	// listeners only receive, wait for the connection to close
	for {
		if _, err := c.read(); err != nil {
			return
		}
	}
}

func (s *Ws) handleManage(c *Client, payload Payload) {
	token, _ := payload["token"].(string)
	if token == "" {
		s.error(c, "invalid token")
		return
	}
	if s.token == "" || token != s.token {
		s.error(c, "authentication failed")
		return
	}
	s.acknowledge(c)
	log.Debugf("%s authenticated", c.ID)

	for {
		raw, err := c.read()
		if err != nil {
			return
		}
		payload := parsePayload(raw, "broadcast", "status")
		if payload == nil {
			s.error(c, "invalid command: "+string(raw))
			return
		}
		if payload.Type() == "status" {
			s.handleStatus(c)
			continue
		}
		if !s.handleBroadcast(c, payload) {
			return
		}
	}
}

// handleBroadcast reports whether the connection stays open.
func (s *Ws) handleBroadcast(c *Client, payload Payload) bool {
	schema, ok := payload.Schema()
	if !ok {
		s.error(c, "invalid schema: "+payload.Show("schema"))
		return false
	}
	channel, ok := payload.Channel()
	if !ok {
		s.error(c, "invalid channel: "+payload.Show("channel"))
		return false
	}
	message, ok := payload["message"]
	if !ok || isEmpty(message) {
		s.error(c, "missing message")
		return false
	}

	s.acknowledge(c)

	var groupIDs []string
	filtered := false
	if list, ok := payload["groupids"].([]any); ok {
		filtered = true
		for _, g := range list {
			groupIDs = append(groupIDs, fmt.Sprint(g))
		}
	}
	key := schemaChannel(schema, channel)
	n := s.broadcast(key, filtered, groupIDs, message)
	log.Debugf("%s sent a message to %d receiver(s) @ %s", c.ID, n, key)
	return true
}

func (s *Ws) handleStatus(c *Client) {
	s.acknowledge(c)
	s.send(c, reply{Type: TypeStatus, Message: map[string]any{"connections": s.Status()}})
	log.Debugf("%s status sent", c.ID)
}

// Notify sends a notification to every listener of the schema and
// channel and returns the number of receivers.
func (s *Ws) Notify(schema, channel string, message any) int {
	return s.broadcast(schemaChannel(schema, channel), false, nil, message)
}

func (s *Ws) broadcast(key string, filtered bool, groupIDs []string, message any) int {
	data, err := json.Marshal(reply{Type: TypeNotification, Message: message})
	if err != nil {
		log.Errorf("Error marshaling notification: %v", err)
		return 0
	}

	s.mu.Lock()
	var receivers []*Client
	for client := range s.listeners[key] {
		if !filtered || client.inGroups(groupIDs) {
			receivers = append(receivers, client)
		}
	}
	s.mu.Unlock()

	for _, client := range receivers {
		client.Send(data)
	}
	s.metrics.notified(len(receivers))
	return len(receivers)
}

// Status returns the number of listeners per schema-channel.
func (s *Ws) Status() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := make(map[string]int, len(s.listeners))
	for key, clients := range s.listeners {
		status[key] = len(clients)
	}
	return status
}

// unregister removes the client from every registry.
func (s *Ws) unregister(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.listeners {
		remove(s.listeners, key, c)
	}
	for key := range s.staff {
		remove(s.staff, key, c)
	}
	for schema, channels := range s.channels {
		for id := range channels {
			remove(channels, id, c)
		}
		if len(channels) == 0 {
			delete(s.channels, schema)
		}
	}
}

func (s *Ws) send(c *Client, r reply) {
	data, err := json.Marshal(r)
	if err != nil {
		log.Errorf("Error marshaling reply: %v", err)
		return
	}
	c.Send(data)
}

func (s *Ws) acknowledge(c *Client) {
	s.send(c, reply{Type: TypeAcknowledged})
}

// error replies with the message, the connection is closed by Attach.
func (s *Ws) error(c *Client, message string) {
	log.Debugf("%s error: %s", c.ID, message)
	s.send(c, reply{Type: TypeError, Message: message})
}

func schemaChannel(schema, channel string) string {
	if channel == "" {
		return schema
	}
	return schema + "-" + channel
}

func add(sets map[string]clientSet, key string, c *Client) {
	if sets[key] == nil {
		sets[key] = clientSet{}
	}
	sets[key][c] = struct{}{}
}

func remove(sets map[string]clientSet, key string, c *Client) {
	delete(sets[key], c)
	if len(sets[key]) == 0 {
		delete(sets, key)
	}
}
