package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"alertsync/internal/config"
	"alertsync/internal/remote"
)

// PagerDuty submits events to the PagerDuty Events API v2. The ticket
// identity is the dedup key: trigger and resolve with the same key address
// the same incident, which is what makes create retries safe.
//
// When an API token is configured the client can additionally probe
// incident status through the REST API; without one TicketStatus returns
// StatusUnknown.
type PagerDuty struct {
	eventsURL  string
	apiBase    string
	routingKey string
	apiToken   string
	httpc      *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Entry
	maxRetries int
	retryDelay time.Duration
}

// NewPagerDuty builds a PagerDuty sink from configuration.
func NewPagerDuty(cfg config.Config, logger *logrus.Logger) *PagerDuty {
	return &PagerDuty{
		eventsURL:  cfg.PagerDuty.EventsURL,
		apiBase:    cfg.PagerDuty.APIBase,
		routingKey: cfg.PagerDuty.RoutingKey,
		apiToken:   cfg.PagerDuty.APIToken,
		httpc:      &http.Client{Timeout: cfg.PagerDuty.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.PagerDuty.RatePerSec)), cfg.PagerDuty.RatePerSec),
		logger:     logger.WithField("component", "pagerduty"),
		maxRetries: cfg.Reconcile.MaxRetries,
		retryDelay: cfg.Reconcile.RetryDelay,
	}
}

type eventPayload struct {
	Summary       string            `json:"summary"`
	Source        string            `json:"source"`
	Severity      string            `json:"severity"`
	CustomDetails map[string]string `json:"custom_details,omitempty"`
}

type eventRequest struct {
	RoutingKey  string        `json:"routing_key"`
	EventAction string        `json:"event_action"`
	DedupKey    string        `json:"dedup_key,omitempty"`
	Payload     *eventPayload `json:"payload,omitempty"`
}

type eventResponse struct {
	Status   string `json:"status"`
	DedupKey string `json:"dedup_key"`
	Message  string `json:"message"`
}

// CreateTicket triggers an incident and returns its dedup key.
func (p *PagerDuty) CreateTicket(ctx context.Context, req TicketRequest) (string, error) {
	resp, err := p.enqueue(ctx, eventRequest{
		RoutingKey:  p.routingKey,
		EventAction: "trigger",
		DedupKey:    req.DedupKey,
		Payload: &eventPayload{
			Summary:       req.Summary,
			Source:        req.Source,
			Severity:      req.Severity,
			CustomDetails: req.Details,
		},
	})
	if err != nil {
		return "", err
	}
	if resp.DedupKey != "" {
		return resp.DedupKey, nil
	}
	return req.DedupKey, nil
}

// CloseTicket resolves the incident addressed by the dedup key.
func (p *PagerDuty) CloseTicket(ctx context.Context, ticketID string) error {
	_, err := p.enqueue(ctx, eventRequest{
		RoutingKey:  p.routingKey,
		EventAction: "resolve",
		DedupKey:    ticketID,
	})
	return err
}

// ReopenTicket re-triggers the incident with the same dedup key.
func (p *PagerDuty) ReopenTicket(ctx context.Context, ticketID string, req TicketRequest) error {
	_, err := p.enqueue(ctx, eventRequest{
		RoutingKey:  p.routingKey,
		EventAction: "trigger",
		DedupKey:    ticketID,
		Payload: &eventPayload{
			Summary:       req.Summary,
			Source:        req.Source,
			Severity:      req.Severity,
			CustomDetails: req.Details,
		},
	})
	return err
}

func (p *PagerDuty) enqueue(ctx context.Context, ev eventRequest) (eventResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return eventResponse{}, fmt.Errorf("pagerduty rate limit wait: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return eventResponse{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	var out eventResponse
	err = remote.Retry(ctx, p.logger, p.maxRetries, p.retryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.eventsURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.httpc.Do(req)
		if err != nil {
			return remote.NewTransient("pagerduty enqueue", 0, err)
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 300 {
			return remote.FromStatus("pagerduty enqueue", resp.StatusCode, string(data))
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("failed to decode events response: %w", err)
		}
		return nil
	})
	if err != nil {
		return eventResponse{}, err
	}
	return out, nil
}

type incidentListResponse struct {
	Incidents []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"incidents"`
}

// TicketStatus looks the incident up by its incident key through the REST
// API. Returns StatusUnknown when no API token is configured or the
// incident cannot be found.
func (p *PagerDuty) TicketStatus(ctx context.Context, ticketID string) (TicketStatus, error) {
	if p.apiToken == "" {
		return StatusUnknown, nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return StatusUnknown, fmt.Errorf("pagerduty rate limit wait: %w", err)
	}

	var out incidentListResponse
	err := remote.Retry(ctx, p.logger, p.maxRetries, p.retryDelay, func() error {
		u := fmt.Sprintf("%s/incidents?incident_key=%s", p.apiBase, url.QueryEscape(ticketID))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.pagerduty+json;version=2")
		req.Header.Set("Authorization", "Token token="+p.apiToken)

		resp, err := p.httpc.Do(req)
		if err != nil {
			return remote.NewTransient("pagerduty incidents", 0, err)
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 300 {
			return remote.FromStatus("pagerduty incidents", resp.StatusCode, string(data))
		}
		return json.Unmarshal(data, &out)
	})
	if err != nil {
		return StatusUnknown, err
	}
	if len(out.Incidents) == 0 {
		return StatusUnknown, nil
	}
	// The key addresses one incident chain; the last entry is the current one.
	switch out.Incidents[len(out.Incidents)-1].Status {
	case "resolved":
		return StatusClosed, nil
	default:
		return StatusOpen, nil
	}
}
