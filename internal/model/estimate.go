package model

import "time"

// Estimate is the per-request context carried through the pipeline: the job,
// the raw model output it was built from, and the priced result.
type Estimate struct {
	ID           string     `json:"id"`
	Job          Job        `json:"job"`
	Provider     string     `json:"provider"`
	RawResponse  string     `json:"raw_response"`
	Items        []LineItem `json:"items"`
	Totals       Totals     `json:"totals"`
	BaseDays     int        `json:"base_days"`
	TargetDays   int        `json:"target_days"`
	BudgetTarget int64      `json:"budget_target,omitempty"`
	BudgetScale  float64    `json:"budget_scale,omitempty"`
	Warnings     []string   `json:"warnings,omitempty"`
	UsedFallback bool       `json:"used_fallback,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Warn appends a user-facing warning.
func (e *Estimate) Warn(msg string) {
	e.Warnings = append(e.Warnings, msg)
}

// ManagementRows counts management fee rows.
func ManagementRows(items []LineItem) int {
	n := 0
	for _, it := range items {
		if it.IsManagementFee() {
			n++
		}
	}
	return n
}
