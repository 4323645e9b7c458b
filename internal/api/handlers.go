package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"alertsync/internal/metrics"
	"alertsync/internal/models"
	"alertsync/internal/reconciler"
	"alertsync/internal/store"
)

type Handler struct {
	store      store.MappingStore
	reconciler *reconciler.Reconciler
	metrics    *metrics.Metrics
	logger     *logrus.Logger
}

// zabbixEvent is the payload a Zabbix webhook action posts. Status follows
// the Zabbix trigger convention: PROBLEM for a firing trigger, OK once it
// clears.
type zabbixEvent struct {
	TriggerID string `json:"trigger_id" binding:"required"`
	Host      string `json:"host" binding:"required"`
	Status    string `json:"status" binding:"required"`
	Severity  int    `json:"severity"`
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
}

func (h *Handler) ZabbixWebhook(c *gin.Context) {
	var ev zabbixEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		h.logger.Errorf("Invalid webhook payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var status models.AlertStatus
	switch ev.Status {
	case "PROBLEM", "problem", "open":
		status = models.AlertOpen
	case "OK", "ok", "resolved":
		status = models.AlertResolved
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be PROBLEM or OK"})
		return
	}

	seen := time.Now().UTC()
	if ev.Timestamp > 0 {
		seen = time.Unix(ev.Timestamp, 0).UTC()
	}

	alert := models.Alert{
		ID:          models.AlertID(ev.TriggerID, ev.Host),
		Host:        ev.Host,
		Description: ev.Name,
		Status:      status,
		Severity:    ev.Severity,
		FirstSeen:   seen,
		LastSeen:    seen,
	}

	report, err := h.reconciler.ReconcileOne(c.Request.Context(), alert)
	if report != nil {
		h.metrics.ObserveReport(report)
	}
	if err != nil {
		h.logger.Errorf("Reconcile of webhook alert %s failed: %v", alert.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) GetMappings(c *gin.Context) {
	mappings, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.Errorf("List mappings failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, mappings)
}

func (h *Handler) GetMapping(c *gin.Context) {
	alertID := c.Param("alert_id")
	rec, err := h.store.Get(c.Request.Context(), alertID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "mapping not found"})
		return
	}
	if err != nil {
		h.logger.Errorf("Get mapping %s failed: %v", alertID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}
