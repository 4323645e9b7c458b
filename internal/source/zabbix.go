package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"alertsync/internal/config"
	"alertsync/internal/models"
	"alertsync/internal/remote"
)

// Zabbix fetches the trigger snapshot over the Zabbix JSON-RPC API.
// Triggers in problem state map to open alerts, triggers back in OK state
// to resolved ones, so one query yields the full reconcile input.
type Zabbix struct {
	url        string
	token      string
	httpc      *http.Client
	logger     *logrus.Entry
	maxRetries int
	retryDelay time.Duration
}

// NewZabbix builds a Zabbix alert source from configuration.
func NewZabbix(cfg config.Config, logger *logrus.Logger) *Zabbix {
	return &Zabbix{
		url:        cfg.Zabbix.URL,
		token:      cfg.Zabbix.APIToken,
		httpc:      &http.Client{Timeout: cfg.Zabbix.Timeout},
		logger:     logger.WithField("component", "zabbix"),
		maxRetries: cfg.Reconcile.MaxRetries,
		retryDelay: cfg.Reconcile.RetryDelay,
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int         `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// trigger is the subset of trigger.get output the bridge needs. Zabbix
// returns numeric fields as strings.
type trigger struct {
	TriggerID   string `json:"triggerid"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Value       string `json:"value"`
	LastChange  string `json:"lastchange"`
	Hosts       []struct {
		Host string `json:"host"`
	} `json:"hosts"`
}

// FetchAlerts returns the current alert snapshot.
func (z *Zabbix) FetchAlerts(ctx context.Context) ([]models.Alert, error) {
	params := map[string]interface{}{
		"output":      []string{"triggerid", "description", "priority", "value", "lastchange"},
		"selectHosts": []string{"host"},
		"monitored":   true,
		"sortfield":   "lastchange",
	}

	raw, err := z.call(ctx, "trigger.get", params)
	if err != nil {
		return nil, err
	}

	var triggers []trigger
	if err := json.Unmarshal(raw, &triggers); err != nil {
		return nil, fmt.Errorf("failed to decode trigger.get result: %w", err)
	}

	alerts := make([]models.Alert, 0, len(triggers))
	for _, t := range triggers {
		if len(t.Hosts) == 0 {
			z.logger.Debugf("Trigger %s has no host, skipping", t.TriggerID)
			continue
		}
		host := t.Hosts[0].Host

		status := models.AlertResolved
		if t.Value == "1" {
			status = models.AlertOpen
		}
		severity, _ := strconv.Atoi(t.Priority)

		var seen time.Time
		if ts, err := strconv.ParseInt(t.LastChange, 10, 64); err == nil {
			seen = time.Unix(ts, 0).UTC()
		}

		alerts = append(alerts, models.Alert{
			ID:          models.AlertID(t.TriggerID, host),
			Host:        host,
			Description: t.Description,
			Status:      status,
			Severity:    severity,
			FirstSeen:   seen,
			LastSeen:    seen,
		})
	}

	z.logger.Infof("Fetched %d triggers from Zabbix", len(alerts))
	return alerts, nil
}

func (z *Zabbix) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	var result json.RawMessage
	err = remote.Retry(ctx, z.logger, z.maxRetries, z.retryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json-rpc")
		req.Header.Set("Authorization", "Bearer "+z.token)

		resp, err := z.httpc.Do(req)
		if err != nil {
			return remote.NewTransient("zabbix "+method, 0, err)
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 300 {
			return remote.FromStatus("zabbix "+method, resp.StatusCode, string(data))
		}

		var rpc rpcResponse
		if err := json.Unmarshal(data, &rpc); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", method, err)
		}
		if rpc.Error != nil {
			// API-level rejections (bad token, bad params) do not heal on retry
			return remote.NewPermanent("zabbix "+method, 0,
				fmt.Errorf("api error %d: %s %s", rpc.Error.Code, rpc.Error.Message, rpc.Error.Data))
		}
		result = rpc.Result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
