// Package suggestion runs a fixed rule set over the referral caseload and
// produces prioritised next-action prompts for the triage dashboard. Rules
// are evaluated on read; nothing is persisted.
package suggestion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/referral/referral/internal/domain/referral"
	"github.com/referral/referral/internal/domain/rtt"
)

// Severity orders suggestions on the dashboard.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityWarning:  1,
	SeverityInfo:     2,
}

// Suggestion is one actionable prompt tied to a referral.
type Suggestion struct {
	ReferralID  uuid.UUID `json:"referral_id"`
	UBRN        string    `json:"ubrn"`
	PatientName string    `json:"patient_name"`
	Specialty   string    `json:"specialty"`
	Rule        string    `json:"rule"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
}

// Rule inspects one referral and returns a suggestion or nil.
type Rule interface {
	Name() string
	Evaluate(r *referral.Referral, now time.Time) *Suggestion
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc struct {
	RuleName string
	Fn       func(r *referral.Referral, now time.Time) *Suggestion
}

func (f RuleFunc) Name() string { return f.RuleName }

func (f RuleFunc) Evaluate(r *referral.Referral, now time.Time) *Suggestion {
	return f.Fn(r, now)
}

// ReferralSource is the read access the engine needs.
type ReferralSource interface {
	ListAll(ctx context.Context) ([]*referral.Referral, error)
}

// Engine holds the active rule set and the caseload source.
type Engine struct {
	source ReferralSource
	rules  []Rule
	now    func() time.Time
}

// NewEngine creates an engine with the default rule set.
func NewEngine(source ReferralSource) *Engine {
	return &Engine{
		source: source,
		rules:  DefaultRules(),
		now:    time.Now,
	}
}

// WithRules replaces the rule set, for tests and tuning.
func (e *Engine) WithRules(rules ...Rule) *Engine {
	e.rules = rules
	return e
}

// WithClock overrides the engine clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Evaluate runs every rule over the active caseload, optionally scoped to one
// specialty, and returns suggestions ordered by severity then referral age.
// Terminal referrals are skipped: nothing actionable remains on them.
func (e *Engine) Evaluate(ctx context.Context, specialty string) ([]*Suggestion, error) {
	items, err := e.source.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var out []*Suggestion
	for _, r := range items {
		if r.Terminal() {
			continue
		}
		if specialty != "" && r.Specialty != specialty {
			continue
		}
		for _, rule := range e.rules {
			s := rule.Evaluate(r, now)
			if s == nil {
				continue
			}
			s.ReferralID = r.ID
			s.UBRN = r.UBRN
			s.PatientName = r.Patient.Name
			s.Specialty = r.Specialty
			s.Rule = rule.Name()
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if severityRank[out[i].Severity] != severityRank[out[j].Severity] {
			return severityRank[out[i].Severity] < severityRank[out[j].Severity]
		}
		return out[i].ReferralID.String() < out[j].ReferralID.String()
	})
	return out, nil
}

// DefaultRules is the production rule set, ordered roughly by urgency.
func DefaultRules() []Rule {
	return []Rule{
		RuleFunc{"rtt-breach", ruleRTTBreach},
		RuleFunc{"rtt-at-risk", ruleRTTAtRisk},
		RuleFunc{"emergency-untriaged", ruleEmergencyUntriaged},
		RuleFunc{"stale-new", ruleStaleNew},
		RuleFunc{"stalled-assessment", ruleStalledAssessment},
		RuleFunc{"missing-clinical-reason", ruleMissingClinicalReason},
	}
}

func ruleRTTBreach(r *referral.Referral, now time.Time) *Suggestion {
	p, err := rtt.Evaluate(r.CreatedAt, now)
	if err != nil || p.Risk != rtt.RiskBreached {
		return nil
	}
	return &Suggestion{
		Severity: SeverityCritical,
		Message:  fmt.Sprintf("pathway breached %d days ago, escalate to the specialty lead", p.DaysOverdue),
	}
}

func ruleRTTAtRisk(r *referral.Referral, now time.Time) *Suggestion {
	p, err := rtt.Evaluate(r.CreatedAt, now)
	if err != nil || p.Risk != rtt.RiskHigh {
		return nil
	}
	return &Suggestion{
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("%d days left on the 18-week pathway, prioritise booking", p.DaysRemaining),
	}
}

func ruleEmergencyUntriaged(r *referral.Referral, _ time.Time) *Suggestion {
	if r.Priority != referral.PriorityEmergency || r.Status != referral.StatusNew {
		return nil
	}
	return &Suggestion{
		Severity: SeverityCritical,
		Message:  "emergency referral awaiting triage, action immediately",
	}
}

// staleNewDays is how long a referral may sit untriaged before prompting.
const staleNewDays = 7

func ruleStaleNew(r *referral.Referral, now time.Time) *Suggestion {
	if r.Status != referral.StatusNew || r.Priority == referral.PriorityEmergency {
		return nil
	}
	age := int(now.Sub(r.CreatedAt) / (24 * time.Hour))
	if age < staleNewDays {
		return nil
	}
	return &Suggestion{
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("untriaged for %d days, accept or reject", age),
	}
}

// stalledAssessmentDays is how long a referral may sit in pre-assessment.
const stalledAssessmentDays = 21

func ruleStalledAssessment(r *referral.Referral, now time.Time) *Suggestion {
	if r.Status != referral.StatusAccepted || r.TriageStatus != referral.TriagePreAssess {
		return nil
	}
	age := int(now.Sub(r.UpdatedAt) / (24 * time.Hour))
	if age < stalledAssessmentDays {
		return nil
	}
	return &Suggestion{
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("in pre-assessment for %d days, record the assessment outcome", age),
	}
}

func ruleMissingClinicalReason(r *referral.Referral, _ time.Time) *Suggestion {
	if r.Clinical.Reason != "" {
		return nil
	}
	return &Suggestion{
		Severity: SeverityInfo,
		Message:  "no reason for referral recorded, request details from the referrer",
	}
}
