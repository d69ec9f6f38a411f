package ws

import (
	"context"
	"encoding/json"
	"html"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/avvvet/electionday-services/internal/socketsvc/chat"
)

const storeTimeout = 10 * time.Second

// ChatStore persists chats and their transcripts.
type ChatStore interface {
	ByID(ctx context.Context, schema, id string) (*chat.Chat, error)
	AppendHistory(ctx context.Context, schema, id string, entry chat.HistoryEntry) error
	Deactivate(ctx context.Context, schema, id string) error
	SetUser(ctx context.Context, schema, id, userID string) error
}

// chatMessage is a message sent by a customer or staff member.
type chatMessage struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	User    string `json:"user"`
	Text    string `json:"text"`
	Time    string `json:"time"`
	Channel string `json:"channel"`
}

func (m chatMessage) historyEntry() chat.HistoryEntry {
	return chat.HistoryEntry{
		UserID: html.EscapeString(m.UserID),
		User:   html.EscapeString(m.User),
		Text:   html.EscapeString(m.Text),
		Time:   html.EscapeString(m.Time),
	}
}

func (s *Ws) handleCustomerChat(c *Client, payload Payload) {
	schema, ok := payload.Schema()
	if !ok || schema != c.identity.Schema {
		s.error(c, "invalid schema: "+payload.Show("schema"))
		return
	}
	chatID := c.identity.ActiveChatID
	if chatID == "" {
		log.Errorf("Unable to find active_chat_id of %s, aborting", c.ID)
		return
	}

	current, err := s.loadChat(schema, chatID)
	if err != nil || !current.Active {
		s.error(c, "invalid chat: "+chatID)
		return
	}

	s.join(schema, chatID, c)
	s.acknowledge(c)
	log.Debugf("added %s to channel %s", c.ID, chatID)

	for {
		raw, err := c.read()
		if err != nil {
			return
		}
		var msg chatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warnf("Invalid chat message from %s: %v", c.ID, err)
			continue
		}
		if msg.Type != "message" {
			continue
		}

		stored, err := s.loadChat(schema, chatID)
		if err != nil {
			log.Errorf("Unable to find stored chat %s: %v", chatID, err)
			continue
		}

		// the customer alone in the channel asks all staff to accept
		if n := s.relay(schema, chatID, raw); n == 1 && stored.UserID == "" {
			s.notify(s.staffOf(schema), map[string]string{
				"type":    "request",
				"text":    msg.Text,
				"userId":  msg.UserID,
				"user":    msg.User,
				"topic":   stored.Topic,
				"channel": chatID,
			})
		}

		s.appendHistory(schema, chatID, msg)
	}
}

func (s *Ws) handleStaffChat(c *Client, payload Payload) {
	schema, ok := payload.Schema()
	if !ok || schema != c.identity.Schema {
		s.error(c, "invalid schema: "+payload.Show("schema"))
		return
	}
	s.acknowledge(c)
	if !c.isStaff() {
		log.Debugf("%s is not a staff member", c.ID)
		return
	}

	s.mu.Lock()
	add(s.staff, schema, c)
	s.mu.Unlock()
	log.Debugf("added %s to staff connections", c.ID)

	// current receives every message of the staff member, openChannel is
	// the chat messages are stored in
	current, openChannel := "", ""
	for {
		raw, err := c.read()
		if err != nil {
			return
		}
		var msg chatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warnf("Invalid chat message from %s: %v", c.ID, err)
			continue
		}

		if current != "" {
			s.relay(schema, current, raw)
		}

		switch msg.Type {
		case "message":
			if openChannel == "" {
				log.Errorf("%s sent a message without an open chat", c.ID)
				continue
			}
			s.appendHistory(schema, openChannel, msg)

		case "reconnect":
			current = msg.Channel
			s.join(schema, current, c)

		case "end-chat":
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			err := s.chats.Deactivate(ctx, schema, msg.Channel)
			cancel()
			if err != nil {
				log.Errorf("Unable to end chat %s: %v", msg.Channel, err)
			}

		case "accepted":
			openChannel, current = msg.Channel, msg.Channel
			s.join(schema, current, c)
			stored, err := s.loadChat(schema, openChannel)
			if err != nil {
				log.Errorf("Unable to find stored chat %s: %v", openChannel, err)
				continue
			}

			var others []*Client
			for _, staff := range s.staffOf(schema) {
				if staff != c {
					others = append(others, staff)
				}
			}
			s.notify(others, map[string]string{"type": "hide-request", "channel": openChannel})
			s.sendHistory(c, stored)

			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			err = s.chats.SetUser(ctx, schema, openChannel, html.EscapeString(msg.UserID))
			cancel()
			if err != nil {
				log.Errorf("Unable to assign chat %s: %v", openChannel, err)
			}

		case "request-chat-history":
			openChannel = msg.Channel
			stored, err := s.loadChat(schema, openChannel)
			if err != nil {
				log.Errorf("Unable to find stored chat %s: %v", openChannel, err)
				continue
			}
			current = openChannel
			s.join(schema, current, c)
			s.sendHistory(c, stored)
		}
	}
}

func (s *Ws) loadChat(schema, id string) (*chat.Chat, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return s.chats.ByID(ctx, schema, id)
}

func (s *Ws) appendHistory(schema, id string, msg chatMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.chats.AppendHistory(ctx, schema, id, msg.historyEntry()); err != nil {
		log.Errorf("Unable to store message of chat %s: %v", id, err)
	}
}

func (s *Ws) sendHistory(c *Client, stored *chat.Chat) {
	history := stored.History
	if history == nil {
		history = []chat.HistoryEntry{}
	}
	s.notify([]*Client{c}, map[string]any{
		"type":    "chat-history",
		"history": history,
		"channel": stored.ID,
	})
}

func (s *Ws) join(schema, id string, c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channels[schema] == nil {
		s.channels[schema] = map[string]clientSet{}
	}
	add(s.channels[schema], id, c)
}

func (s *Ws) staffOf(schema string) []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	clients := make([]*Client, 0, len(s.staff[schema]))
	for c := range s.staff[schema] {
		clients = append(clients, c)
	}
	return clients
}

// relay forwards a raw chat message to the connections of a chat and
// returns their number.
func (s *Ws) relay(schema, id string, raw []byte) int {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.channels[schema][id]))
	for c := range s.channels[schema][id] {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	data, err := json.Marshal(reply{Type: TypeNotification, Message: string(raw)})
	if err != nil {
		log.Errorf("Error marshaling notification: %v", err)
		return 0
	}
	for _, c := range clients {
		c.Send(data)
	}
	return len(clients)
}

// notify sends a notification whose message is the JSON encoded inner
// message.
func (s *Ws) notify(clients []*Client, inner any) {
	encoded, err := json.Marshal(inner)
	if err != nil {
		log.Errorf("Error marshaling notification: %v", err)
		return
	}
	for _, c := range clients {
		s.send(c, reply{Type: TypeNotification, Message: string(encoded)})
	}
}
