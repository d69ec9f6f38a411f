package broker

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/avvvet/electionday-services/internal/comm"
	"github.com/avvvet/electionday-services/internal/electionsvc/models"
)

const requestTimeout = 5 * time.Second

// Requester asks another service and waits for the reply.
type Requester interface {
	Request(subj string, data []byte, timeout time.Duration) (*nats.Msg, error)
}

type Broker struct {
	Conn   *nats.Conn
	Notify func(schema, channel string, message any) int

	requester Requester
}

func NewBroker(conn *nats.Conn, fncNotify func(string, string, any) int) *Broker {
	b := &Broker{
		Conn:   conn,
		Notify: fncNotify,
	}
	if conn != nil {
		b.requester = conn
	}
	return b
}

// consume the results-changed events, every socket service relays them
// to its own listeners
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// handleMessages receive results-changed events from the election service
func (b *Broker) handleMessages(msgNats *nats.Msg) {
	message := &comm.WSMessage{}
	if err := json.Unmarshal(msgNats.Data, message); err != nil {
		log.Errorf("Error %s", err)
		return
	}

	switch message.Type {
	case comm.TypeResultsChanged:
		var changed models.Changed
		if err := json.Unmarshal(message.Data, &changed); err != nil {
			log.Errorf("Error decoding results-changed: %s", err)
			return
		}
		n := b.Notify(changed.Principal, "", b.notification(changed))
		log.Debugf("%s %s changed, %d listener(s) notified", changed.Kind, changed.ID, n)
	default:
		log.Errorf("Unknown message %s", message.Type)
	}
}

// notification is the summary of the changed vote or election, or the
// event itself when the election service does not answer.
func (b *Broker) notification(changed models.Changed) any {
	if b.requester == nil {
		return changed
	}
	payload, err := comm.NewMessage(comm.TypeGetSummary, comm.SummaryRequest{
		Principal: changed.Principal,
		Kind:      changed.Kind,
		ID:        changed.ID,
	})
	if err != nil {
		log.Errorf("Error %s", err)
		return changed
	}

	msg, err := b.requester.Request(comm.ElectionServiceTopic, payload, requestTimeout)
	if err != nil {
		log.Warnf("Error requesting summary of %s %s: %s", changed.Kind, changed.ID, err)
		return changed
	}

	response := &comm.WSMessage{}
	if err := json.Unmarshal(msg.Data, response); err != nil || response.Type != comm.TypeSummary {
		log.Warnf("No summary for %s %s: %s", changed.Kind, changed.ID, msg.Data)
		return changed
	}
	return response.Data
}
