// Package sink defines the ticketing-system capability interface and its
// PagerDuty implementation. One implementation per target system, selected
// via configuration.
package sink

import "context"

// TicketStatus is the ticketing-side state of a ticket, as far as the sink
// can observe it.
type TicketStatus string

const (
	StatusOpen    TicketStatus = "open"
	StatusClosed  TicketStatus = "closed"
	StatusUnknown TicketStatus = "unknown"
)

// TicketRequest describes the ticket to create (or re-trigger) for an
// alert. DedupKey is the idempotency token: creating twice with the same
// key must not produce a second ticket.
type TicketRequest struct {
	DedupKey string
	Summary  string
	Source   string
	Severity string
	Details  map[string]string
}

// TicketSink is the capability interface to the ticketing system.
type TicketSink interface {
	// CreateTicket opens a ticket and returns its identity.
	CreateTicket(ctx context.Context, req TicketRequest) (string, error)
	// CloseTicket resolves the ticket. Closing an already-closed ticket
	// is a no-op on the remote side.
	CloseTicket(ctx context.Context, ticketID string) error
	// ReopenTicket re-triggers a ticket that was closed externally while
	// its alert is still open.
	ReopenTicket(ctx context.Context, ticketID string, req TicketRequest) error
	// TicketStatus reports the remote state of the ticket, or
	// StatusUnknown when the sink cannot observe it.
	TicketStatus(ctx context.Context, ticketID string) (TicketStatus, error)
}
