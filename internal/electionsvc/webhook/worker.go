package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
	"github.com/avvvet/electionday-services/internal/electionsvc/store"
)

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	LastNotified(ctx context.Context, notificationType, kind, id string) (*time.Time, error)
}

type SummaryLoader interface {
	Summary(ctx context.Context, principalID, kind, id string) (models.Summary, error)
}

type Trigger interface {
	Trigger(ctx context.Context, p *principal.Principal, summary models.Summary) error
}

// Worker triggers the webhooks of a principal once per results state.
type Worker struct {
	principals    map[string]*principal.Principal
	notifications NotificationStore
	results       SummaryLoader
	dispatcher    Trigger
}

func NewWorker(principals map[string]*principal.Principal, notifications NotificationStore,
	results SummaryLoader, dispatcher Trigger) *Worker {
	return &Worker{
		principals:    principals,
		notifications: notifications,
		results:       results,
		dispatcher:    dispatcher,
	}
}

// Handle triggers the webhooks for a results-changed event. Events whose
// last_modified was already notified are skipped.
func (w *Worker) Handle(ctx context.Context, changed models.Changed) error {
	p, ok := w.principals[changed.Principal]
	if !ok {
		return fmt.Errorf("unknown principal %s", changed.Principal)
	}
	if len(p.Webhooks) == 0 {
		return nil
	}

	last, err := w.notifications.LastNotified(ctx, models.NotificationWebhooks, changed.Kind, changed.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	case sameTime(last, changed.LastModified):
		log.Infof("%s %s already notified for %v", changed.Kind, changed.ID, changed.LastModified)
		return nil
	}

	summary, err := w.results.Summary(ctx, p.ID, changed.Kind, changed.ID)
	if err != nil {
		return fmt.Errorf("load summary: %w", err)
	}

	n := &models.Notification{
		ID:           uuid.NewString(),
		Type:         models.NotificationWebhooks,
		LastModified: changed.LastModified,
	}
	if changed.Kind == models.KindElection {
		n.ElectionID = &changed.ID
	} else {
		n.VoteID = &changed.ID
	}
	if err := w.notifications.Create(ctx, n); err != nil {
		return err
	}

	return w.dispatcher.Trigger(ctx, p, summary)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
