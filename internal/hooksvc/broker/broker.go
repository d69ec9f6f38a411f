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

const handleTimeout = 2 * time.Minute

// Worker triggers the webhooks of a changed vote or election.
type Worker interface {
	Handle(ctx context.Context, changed models.Changed) error
}

type Broker struct {
	Conn   *nats.Conn
	Worker Worker
}

func NewBroker(nc *nats.Conn, worker Worker) *Broker {
	return &Broker{
		Conn:   nc,
		Worker: worker,
	}
}

// handleMessage receives the results-changed events of the election service
func (b *Broker) handleMessage(msgNat *nats.Msg) {
	msg := &comm.WSMessage{}
	if err := json.Unmarshal(msgNat.Data, msg); err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}
	if msg.Type != comm.TypeResultsChanged {
		log.Warnf("unknown message type %q", msg.Type)
		return
	}

	var changed models.Changed
	if err := json.Unmarshal(msg.Data, &changed); err != nil {
		log.Errorf("Error decoding results-changed: %s", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	if err := b.Worker.Handle(ctx, changed); err != nil {
		log.Errorf("Error [webhooks] %s %s: %s", changed.Kind, changed.ID, err)
		return
	}
	log.Debugf("webhooks handled for %s %s", changed.Kind, changed.ID)
}

// consume results-changed events once per hook service group (Queue)
func (b *Broker) QueueSubscribe(topic, queueGroup string) (*nats.Subscription, error) {
	sub, err := b.Conn.QueueSubscribe(topic, queueGroup, b.handleMessage)
	if err != nil {
		return nil, err
	}

	return sub, nil
}
