// Package reconciler implements the core sync algorithm: it compares the
// current alert snapshot against the persisted mapping records and drives
// the ticket sink so that every open alert has exactly one open ticket.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"alertsync/internal/models"
	"alertsync/internal/sink"
	"alertsync/internal/store"
)

// Policy holds the configurable reconcile decisions.
type Policy struct {
	// ReopenClosed controls what happens when a ticket was closed on the
	// ticketing side while its alert is still open: reopen it (default)
	// or leave it closed.
	ReopenClosed bool
}

// Reconciler maps alert state to ticket state. Mapping writes happen only
// after the corresponding remote call succeeded, so a crash mid-run never
// records a ticket that was not created.
type Reconciler struct {
	store  store.MappingStore
	sink   sink.TicketSink
	policy Policy
	logger *logrus.Entry
	now    func() time.Time
}

// New constructs a Reconciler.
func New(st store.MappingStore, snk sink.TicketSink, policy Policy, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		store:  st,
		sink:   snk,
		policy: policy,
		logger: logger.WithField("component", "reconciler"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile runs one batch pass over the full alert snapshot.
//
// Per-alert failures are isolated: a sink error for one alert is recorded
// on the report and processing continues. The returned error is non-nil
// only for store failures that threaten the one-ticket-per-alert
// invariant; such runs stop immediately and the report carries the
// inconsistency for operator review.
func (r *Reconciler) Reconcile(ctx context.Context, alerts []models.Alert) (*Report, error) {
	report := r.newReport()
	defer func() { report.Duration = r.now().Sub(report.StartedAt) }()

	active, err := r.store.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to load active mappings: %w", err)
	}
	activeByAlert := make(map[string]models.MappingRecord, len(active))
	for _, rec := range active {
		activeByAlert[rec.AlertID] = rec
	}

	seen := make(map[string]bool, len(alerts))
	for _, alert := range alerts {
		seen[alert.ID] = true
		rec, mapped := activeByAlert[alert.ID]

		switch {
		case alert.Status == models.AlertOpen && !mapped:
			if err := r.create(ctx, alert, report); err != nil {
				return report, err
			}
		case alert.Status == models.AlertOpen && mapped:
			if err := r.refresh(ctx, alert, rec, report); err != nil {
				return report, err
			}
		case alert.Status == models.AlertResolved && mapped:
			r.closeTicket(ctx, rec, report)
		default:
			// Resolved and never mapped: transient flap, no ticket ever
			report.Ignored++
		}
	}

	// Active mappings whose alert vanished from the snapshot are treated
	// as resolved
	for _, rec := range active {
		if !seen[rec.AlertID] {
			r.closeTicket(ctx, rec, report)
		}
	}

	r.logger.Info(report.Summary())
	return report, nil
}

// ReconcileOne applies the same per-alert semantics to a single event.
// Used by the serve-mode webhook and Kafka ingest paths.
func (r *Reconciler) ReconcileOne(ctx context.Context, alert models.Alert) (*Report, error) {
	report := r.newReport()
	defer func() { report.Duration = r.now().Sub(report.StartedAt) }()

	rec, err := r.store.Get(ctx, alert.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return report, fmt.Errorf("failed to load mapping for %s: %w", alert.ID, err)
	}
	mapped := err == nil && rec.Active()

	switch {
	case alert.Status == models.AlertOpen && !mapped:
		if err := r.create(ctx, alert, report); err != nil {
			return report, err
		}
	case alert.Status == models.AlertOpen && mapped:
		if err := r.refresh(ctx, alert, rec, report); err != nil {
			return report, err
		}
	case alert.Status == models.AlertResolved && mapped:
		r.closeTicket(ctx, rec, report)
	default:
		report.Ignored++
	}

	return report, nil
}

// create opens a ticket for an unmapped open alert and persists the
// mapping afterwards. The dedup key is the alert identity, so a retry on
// the next run cannot produce a second ticket.
func (r *Reconciler) create(ctx context.Context, alert models.Alert, report *Report) error {
	ticketID, err := r.sink.CreateTicket(ctx, ticketRequest(alert))
	if err != nil {
		r.logger.Errorf("Create ticket for %s failed: %v", alert.ID, err)
		report.fail(alert.ID, "", "create", err)
		return nil
	}

	rec := models.NewMapping(alert.ID, ticketID, r.now())
	if err := r.store.Upsert(ctx, rec); err != nil {
		// The ticket exists but is not recorded. This breaks the
		// one-ticket-per-alert invariant and needs manual review.
		msg := fmt.Sprintf("ticket %s created for alert %s but mapping write failed: %v", ticketID, alert.ID, err)
		report.Inconsistencies = append(report.Inconsistencies, msg)
		r.logger.Error(msg)
		return fmt.Errorf("mapping write after ticket create: %w", err)
	}

	report.Created++
	r.logger.Infof("Created ticket %s for alert %s", ticketID, alert.ID)
	return nil
}

// refresh handles an open alert that already has an active mapping. The
// steady state is a no-op; if the ticket was closed externally, the
// reopen policy decides.
func (r *Reconciler) refresh(ctx context.Context, alert models.Alert, rec models.MappingRecord, report *Report) error {
	status, err := r.sink.TicketStatus(ctx, rec.TicketID)
	if err != nil {
		// The probe is advisory; an unreachable status endpoint must not
		// fail an otherwise healthy alert
		r.logger.Warnf("Status probe for ticket %s failed: %v", rec.TicketID, err)
		status = sink.StatusUnknown
	}

	if status != sink.StatusClosed || !r.policy.ReopenClosed {
		report.Unchanged++
		return nil
	}

	if err := r.sink.ReopenTicket(ctx, rec.TicketID, ticketRequest(alert)); err != nil {
		r.logger.Errorf("Reopen ticket %s for %s failed: %v", rec.TicketID, alert.ID, err)
		report.fail(alert.ID, rec.TicketID, "reopen", err)
		return nil
	}

	rec.UpdatedAt = r.now()
	if err := r.store.Upsert(ctx, rec); err != nil {
		msg := fmt.Sprintf("ticket %s reopened for alert %s but mapping write failed: %v", rec.TicketID, alert.ID, err)
		report.Inconsistencies = append(report.Inconsistencies, msg)
		r.logger.Error(msg)
		return fmt.Errorf("mapping write after ticket reopen: %w", err)
	}

	report.Reopened++
	r.logger.Infof("Reopened ticket %s for alert %s", rec.TicketID, alert.ID)
	return nil
}

// closeTicket resolves the ticket of a resolved or vanished alert, then
// marks the mapping closed. Failures leave the mapping active so the next
// run retries; resolving twice is harmless on the remote side.
func (r *Reconciler) closeTicket(ctx context.Context, rec models.MappingRecord, report *Report) {
	if err := r.sink.CloseTicket(ctx, rec.TicketID); err != nil {
		r.logger.Errorf("Close ticket %s for %s failed: %v", rec.TicketID, rec.AlertID, err)
		report.fail(rec.AlertID, rec.TicketID, "close", err)
		return
	}

	if err := r.store.MarkClosed(ctx, rec.AlertID); err != nil {
		// Retry-safe: the next run closes again, which is a remote no-op
		r.logger.Errorf("Mark mapping %s closed failed: %v", rec.AlertID, err)
		report.fail(rec.AlertID, rec.TicketID, "store", err)
		return
	}

	report.Closed++
	r.logger.Infof("Closed ticket %s for alert %s", rec.TicketID, rec.AlertID)
}

func (r *Reconciler) newReport() *Report {
	return &Report{
		RunID:     uuid.New().String(),
		StartedAt: r.now(),
	}
}

func ticketRequest(alert models.Alert) sink.TicketRequest {
	return sink.TicketRequest{
		DedupKey: alert.ID,
		Summary:  alert.Summary(),
		Source:   alert.Host,
		Severity: models.PagerDutySeverity(alert.Severity),
		Details: map[string]string{
			"alert_id":   alert.ID,
			"host":       alert.Host,
			"severity":   fmt.Sprintf("%d", alert.Severity),
			"first_seen": alert.FirstSeen.Format(time.RFC3339),
			"last_seen":  alert.LastSeen.Format(time.RFC3339),
		},
	}
}
