package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"alertsync/internal/config"
	"alertsync/internal/models"
)

// KafkaFeed consumes alert events from a Kafka topic in serve mode. Each
// message carries one alert state change and is handed to the reconciler
// individually.
type KafkaFeed struct {
	reader *kafka.Reader
	logger *logrus.Entry
}

// NewKafkaFeed builds a feed reading from the configured broker and topic.
func NewKafkaFeed(cfg config.Config, logger *logrus.Logger) *KafkaFeed {
	return &KafkaFeed{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  []string{cfg.Kafka.Broker},
			Topic:    cfg.Kafka.Topic,
			GroupID:  cfg.Kafka.GroupID,
			MinBytes: 1,
			MaxBytes: 1 << 20,
		}),
		logger: logger.WithField("component", "kafka"),
	}
}

// alertEvent is the JSON message shape on the alert topic.
type alertEvent struct {
	AlertID     string `json:"alert_id"`
	Host        string `json:"host"`
	Status      string `json:"status"` // open | resolved
	Severity    int    `json:"severity"`
	Description string `json:"description"`
	Timestamp   int64  `json:"timestamp"`
}

// Run reads messages until ctx is cancelled, converting each valid event
// to an alert and passing it to handle. Malformed messages are logged and
// skipped; handle errors are logged but do not stop the feed.
func (f *KafkaFeed) Run(ctx context.Context, handle func(context.Context, models.Alert) error) {
	f.logger.Info("Kafka alert feed started")
	for {
		msg, err := f.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				f.logger.Info("Kafka alert feed stopped")
				return
			}
			f.logger.Errorf("Read message failed: %v", err)
			continue
		}

		var ev alertEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			f.logger.Errorf("Unmarshal message failed: %v", err)
			continue
		}
		if ev.AlertID == "" || ev.Host == "" {
			f.logger.Error("Invalid message: missing alert_id or host")
			continue
		}

		status := models.AlertStatus(ev.Status)
		if status != models.AlertOpen && status != models.AlertResolved {
			f.logger.Errorf("Invalid message: unknown status %q", ev.Status)
			continue
		}

		seen := time.Now().UTC()
		if ev.Timestamp > 0 {
			seen = time.Unix(ev.Timestamp, 0).UTC()
		}

		alert := models.Alert{
			ID:          models.AlertID(ev.AlertID, ev.Host),
			Host:        ev.Host,
			Description: ev.Description,
			Status:      status,
			Severity:    ev.Severity,
			FirstSeen:   seen,
			LastSeen:    seen,
		}
		if err := handle(ctx, alert); err != nil {
			f.logger.Errorf("Reconcile of %s failed: %v", alert.ID, err)
			continue
		}
		f.logger.Infof("Processed alert event %s (%s)", alert.ID, alert.Status)
	}
}

// Close shuts the underlying reader down.
func (f *KafkaFeed) Close() error {
	return f.reader.Close()
}
