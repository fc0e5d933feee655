package policy

import "time"

// Policy is one appended policy version for a project. The current policy is
// the row with the greatest active_from; nothing is ever deactivated.
type Policy struct {
	PolicyID   string         `json:"policy_id"`
	ProjectID  string         `json:"project_id"`
	Version    string         `json:"version"`
	Body       map[string]any `json:"body"`
	ActiveFrom time.Time      `json:"active_from"`
}

// MinDim reads the policy's minimum dimming bound, defaulting to 0.
func (p *Policy) MinDim() int { return intField(p.Body, "min_dim", 0) }

// MaxDim reads the policy's maximum dimming bound, defaulting to 100.
func (p *Policy) MaxDim() int { return intField(p.Body, "max_dim", 100) }

func intField(body map[string]any, key string, fallback int) int {
	switch v := body[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
