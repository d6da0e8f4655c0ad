package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/serpstack/aiops-engine/internal/models"
)

// Executor carries out a single remediation action against the outside
// world. Implementations must honour ctx cancellation and deadlines.
type Executor interface {
	Execute(ctx context.Context, actionType models.ActionType, target string, params map[string]any) (map[string]any, error)
}

// Simulated is the default in-process executor. It performs no real side
// effects; it returns a structured result describing what would have been
// done. Used in tests and local development.
type Simulated struct {
	// Latency, when positive, is slept before returning so timeout
	// handling can be exercised.
	Latency time.Duration
}

func (s *Simulated) Execute(ctx context.Context, actionType models.ActionType, target string, params map[string]any) (map[string]any, error) {
	if target == "" {
		return nil, fmt.Errorf("executor: empty target for action %s", actionType)
	}
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := map[string]any{
		"action":    string(actionType),
		"target":    target,
		"simulated": true,
	}
	switch actionType {
	case models.ActionScaleUp, models.ActionScaleDown:
		replicas := 1
		if v, ok := params["replicas"].(int); ok {
			replicas = v
		} else if v, ok := params["replicas"].(float64); ok {
			replicas = int(v)
		}
		result["replicas"] = replicas
	case models.ActionBlockIP:
		if ip, ok := params["ip"].(string); ok {
			result["blocked_ip"] = ip
		}
	case models.ActionCustomScript:
		if script, ok := params["script"].(string); ok {
			result["script"] = script
		}
	}
	return result, nil
}
