package models

import (
	"fmt"
	"time"
)

// AlertStatus is the monitoring-side state of an alert.
type AlertStatus string

const (
	AlertOpen     AlertStatus = "open"
	AlertResolved AlertStatus = "resolved"
)

// Alert is one monitoring alert as reported by the alert source.
// ID is the stable identity used for deduplication: trigger ID plus host,
// so the same trigger firing on two hosts yields two alerts.
type Alert struct {
	ID          string      `json:"id"`
	Host        string      `json:"host"`
	Description string      `json:"description"`
	Status      AlertStatus `json:"status"`
	Severity    int         `json:"severity"`
	FirstSeen   time.Time   `json:"first_seen"`
	LastSeen    time.Time   `json:"last_seen"`
}

// AlertID builds the stable alert identity from a trigger ID and host name.
func AlertID(triggerID, host string) string {
	return fmt.Sprintf("%s-%s", triggerID, host)
}

// Summary renders the human-facing one-line description used as the
// incident title.
func (a Alert) Summary() string {
	if a.Host == "" {
		return a.Description
	}
	return fmt.Sprintf("%s on %s", a.Description, a.Host)
}

// PagerDutySeverity maps a Zabbix trigger priority (0..5) to a PagerDuty
// event severity.
func PagerDutySeverity(severity int) string {
	switch {
	case severity >= 4:
		return "critical"
	case severity == 3:
		return "error"
	case severity == 2:
		return "warning"
	default:
		return "info"
	}
}
