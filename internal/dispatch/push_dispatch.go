package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/observability"
)

// PushDispatcher delivers customer status updates over websocket, falling
// back to the webhook, and posts job offers for providers to the webhook.
type PushDispatcher struct {
	Endpoint string // webhook url; empty disables the fallback
	Key      string // sent as a bearer token when set
	Client   *http.Client
	WS       *WSRegistry
	Logger   *slog.Logger
}

func NewPushDispatcher(endpoint, key string, ws *WSRegistry, logger *slog.Logger) *PushDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushDispatcher{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws, Logger: logger}
}

type envelope struct {
	Type       string `json:"type"`
	CustomerID string `json:"customer_id,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
	Payload    any    `json:"payload"`
}

func (p *PushDispatcher) NotifyCustomer(ctx context.Context, customerID string, u models.StatusUpdate) error {
	// Try WS first if available
	if p.WS != nil {
		err := p.WS.Send(customerID, u)
		if err == nil {
			return nil
		}
		if err != ErrNoSession {
			p.Logger.Debug("ws send failed", "customer_id", customerID, "error", err)
		}
		if p.Endpoint == "" {
			observability.NotifyFailures.WithLabelValues("status").Inc()
			return err
		}
	}
	if err := p.post(ctx, envelope{Type: "status_update", CustomerID: customerID, Payload: u}); err != nil {
		observability.NotifyFailures.WithLabelValues("status").Inc()
		return err
	}
	return nil
}

func (p *PushDispatcher) OfferProvider(ctx context.Context, offer models.JobOffer) error {
	if p.Endpoint == "" {
		p.Logger.Info("job offer", "request_id", offer.RequestID, "provider_id", offer.ProviderID, "total", offer.TotalPrice)
		return nil
	}
	if err := p.post(ctx, envelope{Type: "job_offer", ProviderID: offer.ProviderID, Payload: offer}); err != nil {
		observability.NotifyFailures.WithLabelValues("offer").Inc()
		return err
	}
	return nil
}

func (p *PushDispatcher) post(ctx context.Context, body envelope) error {
	if p.Endpoint == "" {
		return ErrNoSession
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Key != "" {
		req.Header.Set("Authorization", "Bearer "+p.Key)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
