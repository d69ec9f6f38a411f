package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/avvvet/electionday-services/internal/comm"
	"github.com/avvvet/electionday-services/internal/electionsvc/models"
)

// SummaryLoader loads the summary of a vote or an election.
type SummaryLoader interface {
	Summary(ctx context.Context, principalID, kind, id string) (models.Summary, error)
}

type Broker struct {
	Conn    *nats.Conn
	Results SummaryLoader
}

func NewBroker(nc *nats.Conn, results SummaryLoader) *Broker {
	return &Broker{
		Conn:    nc,
		Results: results,
	}
}

// handles requests coming from the socket and hook services
func (b *Broker) handleMessage(msgNat *nats.Msg) {
	msg := &comm.WSMessage{}
	if err := json.Unmarshal(msgNat.Data, msg); err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}

	switch msg.Type {
	case comm.TypeGetSummary:
		var request comm.SummaryRequest
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error decoding request: %s", err)
			b.respond(msgNat, comm.TypeError, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		summary, err := b.Results.Summary(ctx, request.Principal, request.Kind, request.ID)
		if err != nil {
			log.Errorf("Error [Summary] %s %s: %s", request.Kind, request.ID, err)
			b.respond(msgNat, comm.TypeError, err.Error())
			return
		}
		b.respond(msgNat, comm.TypeSummary, summary)
	default:
		log.Warnf("unknown message type %q", msg.Type)
	}
}

func (b *Broker) respond(msgNat *nats.Msg, msgType string, data any) {
	if msgNat.Reply == "" {
		return
	}
	payload, err := comm.NewMessage(msgType, data)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}
	if err := msgNat.Respond(payload); err != nil {
		log.Errorf("Error responding to %s: %s", msgNat.Subject, err)
	}
}

// PublishChanged tells the socket and hook services that results were
// replaced.
func (b *Broker) PublishChanged(changed models.Changed) error {
	payload, err := comm.NewMessage(comm.TypeResultsChanged, changed)
	if err != nil {
		return err
	}
	return b.Publish(comm.ResultsChangedTopic, payload)
}

// consume requests (Queue)
func (b *Broker) QueueSubscribe(topic, queueGroup string) (*nats.Subscription, error) {
	sub, err := b.Conn.QueueSubscribe(topic, queueGroup, b.handleMessage)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}
