// Package source provides the monitoring-side alert feeds: the Zabbix API
// snapshot client used by sync runs and the Kafka event feed used in serve
// mode.
package source

import (
	"context"

	"alertsync/internal/models"
)

// AlertSource yields the current set of alerts, open and recently
// resolved, from the monitoring system.
type AlertSource interface {
	FetchAlerts(ctx context.Context) ([]models.Alert, error)
}
