package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/serpstack/aiops-engine/internal/models"
)

// Webhook posts actions to an external execution back-end (service
// orchestrator, firewall controller, paging gateway) as JSON over HTTP.
type Webhook struct {
	baseURL    string
	httpClient *http.Client
}

// NewWebhook constructs a Webhook executor targeting the configured
// back-end. The timeout bounds the whole request; callers typically also
// wrap Execute in their own action deadline.
func NewWebhook(baseURL string, timeout time.Duration) *Webhook {
	return &Webhook{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type webhookRequest struct {
	Action     string         `json:"action"`
	Target     string         `json:"target"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type webhookResponse struct {
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func (w *Webhook) Execute(ctx context.Context, actionType models.ActionType, target string, params map[string]any) (map[string]any, error) {
	if w.baseURL == "" {
		return nil, fmt.Errorf("executor: webhook base URL not configured")
	}

	payload := webhookRequest{
		Action:     string(actionType),
		Target:     target,
		Parameters: params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal action payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/v1/execute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("executor back-end returned %s", resp.Status)
	}

	var decoded webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode executor response: %w", err)
	}
	if decoded.Error != "" {
		return decoded.Result, fmt.Errorf("executor back-end: %s", decoded.Error)
	}
	return decoded.Result, nil
}
