package policy

import "fmt"

// ValidateBasic is the first guardrail tier: dim must be a percentage. It
// applies to every command regardless of control mode.
func ValidateBasic(dimPercent int) (bool, string) {
	if dimPercent < 0 || dimPercent > 100 {
		return false, fmt.Sprintf("Dimming percentage must be between 0 and 100, got %d", dimPercent)
	}
	return true, ""
}

// ValidatePolicy is the second tier: policy min/max bounds, enforced only for
// optimise-mode assets. Passthrough assets and projects with no policy always
// pass.
func ValidatePolicy(optimise bool, dimPercent int, current *Policy) (bool, string) {
	if !optimise {
		return true, ""
	}
	if current == nil {
		return true, ""
	}

	if dimPercent < current.MinDim() {
		return false, fmt.Sprintf("Dimming below policy minimum: %d%%", current.MinDim())
	}
	if dimPercent > current.MaxDim() {
		return false, fmt.Sprintf("Dimming above policy maximum: %d%%", current.MaxDim())
	}
	return true, ""
}

// ValidateBody checks a policy document on the admin write path.
func ValidateBody(body map[string]any) (bool, string) {
	for _, field := range []string{"min_dim", "max_dim", "max_changes_per_hr"} {
		if _, ok := body[field]; !ok {
			return false, "Missing required policy field: " + field
		}
	}

	minDim := intField(body, "min_dim", 0)
	maxDim := intField(body, "max_dim", 100)
	if minDim < 0 || maxDim > 100 {
		return false, "Dimming percentages must be between 0 and 100"
	}
	if minDim >= maxDim {
		return false, "min_dim must be less than max_dim"
	}
	if intField(body, "max_changes_per_hr", 0) <= 0 {
		return false, "max_changes_per_hr must be positive"
	}
	return true, ""
}
