// Package rtt implements referral-to-treatment pathway evaluation against the
// 18-week statutory target.
package rtt

import (
	"fmt"
	"time"
)

// TargetDays is the RTT statutory window: 18 weeks.
const TargetDays = 126

// BreachRisk classifies how close a pathway is to exceeding its target.
type BreachRisk string

const (
	RiskLow      BreachRisk = "low"
	RiskMedium   BreachRisk = "medium"
	RiskHigh     BreachRisk = "high"
	RiskBreached BreachRisk = "breached"
)

// PathwayStatus describes whether the RTT clock is still running.
type PathwayStatus string

const (
	StatusIncomplete PathwayStatus = "incomplete"
	StatusCompleted  PathwayStatus = "completed"
	StatusStopped    PathwayStatus = "stopped"
)

// Pathway is the evaluated state of a referral's RTT clock. It is derived on
// every read and never persisted.
type Pathway struct {
	ClockStart    time.Time     `json:"clock_start"`
	TargetDate    time.Time     `json:"target_date"`
	DaysElapsed   int           `json:"days_elapsed"`
	DaysRemaining int           `json:"days_remaining"` // floored at zero
	DaysOverdue   int           `json:"days_overdue"`   // zero unless breached
	Risk          BreachRisk    `json:"breach_risk"`
	Status        PathwayStatus `json:"status"`
}

// Classify maps an unclamped days-remaining value to a risk tier. Boundary
// values resolve to the lower-risk tier: 28 is medium, 14 is high, 0 is high
// (only negative values breach).
func Classify(daysRemaining int) BreachRisk {
	switch {
	case daysRemaining < 0:
		return RiskBreached
	case daysRemaining <= 14:
		return RiskHigh
	case daysRemaining <= 28:
		return RiskMedium
	default:
		return RiskLow
	}
}

// TargetDate returns the clock start plus the statutory window, as calendar
// arithmetic on the start date.
func TargetDate(clockStart time.Time) time.Time {
	return clockStart.AddDate(0, 0, TargetDays)
}

// Evaluate computes the pathway state for a clock started at clockStart as of
// now. The zero time is rejected rather than propagated into the arithmetic.
func Evaluate(clockStart, now time.Time) (*Pathway, error) {
	if clockStart.IsZero() {
		return nil, fmt.Errorf("rtt: clock start date is not set")
	}
	if now.IsZero() {
		now = time.Now()
	}

	elapsed := wholeDays(clockStart, now)
	remaining := TargetDays - elapsed

	p := &Pathway{
		ClockStart:    clockStart,
		TargetDate:    TargetDate(clockStart),
		DaysElapsed:   elapsed,
		DaysRemaining: remaining,
		Risk:          Classify(remaining),
		Status:        StatusIncomplete,
	}
	if remaining < 0 {
		p.DaysRemaining = 0
		p.DaysOverdue = -remaining
	}
	return p, nil
}

// EvaluateParsed evaluates a pathway from an ISO-8601 clock-start string as
// stored on referral rows.
func EvaluateParsed(clockStart string, now time.Time) (*Pathway, error) {
	t, err := time.Parse(time.RFC3339, clockStart)
	if err != nil {
		return nil, fmt.Errorf("rtt: parse clock start %q: %w", clockStart, err)
	}
	return Evaluate(t, now)
}

// Stop marks the pathway as no longer accruing, with the reason determining
// the terminal status: completed pathways reached treatment, stopped pathways
// ended for another reason (discharge, rejection).
func (p *Pathway) Stop(completed bool) {
	if completed {
		p.Status = StatusCompleted
		return
	}
	p.Status = StatusStopped
}

func wholeDays(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}
