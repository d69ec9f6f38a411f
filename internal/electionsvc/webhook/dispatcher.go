package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
)

const defaultTimeout = 30 * time.Second

// Dispatcher posts summaries to the webhooks of a principal.
type Dispatcher struct {
	client *http.Client
}

func NewDispatcher(client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Dispatcher{client: client}
}

// Trigger posts the summary to every webhook concurrently. The failures
// of all webhooks are merged into one error.
func (d *Dispatcher) Trigger(ctx context.Context, p *principal.Principal, summary models.Summary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	var g multierror.Group
	for url, headers := range p.Webhooks {
		url, headers := url, headers
		g.Go(func() error {
			return d.post(ctx, url, headers, body)
		})
	}
	return g.Wait().ErrorOrNil()
}

func (d *Dispatcher) post(ctx context.Context, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook %s: %w", url, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook %s: unexpected status %s", url, resp.Status)
	}
	log.Debugf("webhook %s: %s", url, resp.Status)
	return nil
}
