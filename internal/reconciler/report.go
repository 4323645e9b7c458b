package reconciler

import (
	"fmt"
	"strings"
	"time"
)

// Failure is one per-alert error recorded during a run.
type Failure struct {
	AlertID  string `json:"alert_id"`
	TicketID string `json:"ticket_id,omitempty"`
	Stage    string `json:"stage"` // create | close | reopen | store
	Reason   string `json:"reason"`
}

// Report summarizes one reconcile run.
type Report struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Created   int `json:"created"`
	Closed    int `json:"closed"`
	Reopened  int `json:"reopened"`
	Unchanged int `json:"unchanged"`
	Ignored   int `json:"ignored"`
	Failed    int `json:"failed"`

	Failures []Failure `json:"failures,omitempty"`
	// Inconsistencies records tickets whose remote call succeeded but
	// whose mapping write failed. They need operator review.
	Inconsistencies []string `json:"inconsistencies,omitempty"`
}

func (r *Report) fail(alertID, ticketID, stage string, err error) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{
		AlertID:  alertID,
		TicketID: ticketID,
		Stage:    stage,
		Reason:   err.Error(),
	})
}

// Summary renders the one-line run summary printed at the end of a run.
func (r *Report) Summary() string {
	return fmt.Sprintf("run %s: created=%d closed=%d reopened=%d unchanged=%d ignored=%d failed=%d inconsistencies=%d (took %v)",
		r.RunID, r.Created, r.Closed, r.Reopened, r.Unchanged, r.Ignored, r.Failed, len(r.Inconsistencies), r.Duration.Round(time.Millisecond))
}

// Detail renders failed items and inconsistencies for operator follow-up.
func (r *Report) Detail() string {
	var b strings.Builder
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "failed %s: alert=%s", f.Stage, f.AlertID)
		if f.TicketID != "" {
			fmt.Fprintf(&b, " ticket=%s", f.TicketID)
		}
		fmt.Fprintf(&b, ": %s\n", f.Reason)
	}
	for _, msg := range r.Inconsistencies {
		fmt.Fprintf(&b, "inconsistency: %s\n", msg)
	}
	return b.String()
}

// ExitCode maps the run outcome to the process exit code: 0 full success,
// 1 per-item failures, 2 store inconsistencies.
func (r *Report) ExitCode() int {
	if len(r.Inconsistencies) > 0 {
		return 2
	}
	if r.Failed > 0 {
		return 1
	}
	return 0
}
