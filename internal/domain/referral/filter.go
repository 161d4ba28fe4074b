package referral

import (
	"sort"
	"strings"
)

// StatusFilterKind tags which enumeration a status filter value belongs to.
// The dashboard dropdown mixes lifecycle and triage states; the tag keeps the
// predicate from matching across the two.
type StatusFilterKind int

const (
	FilterAll StatusFilterKind = iota
	FilterLifecycle
	FilterTriage
)

// StatusFilter selects referrals by lifecycle status or triage sub-state.
type StatusFilter struct {
	Kind      StatusFilterKind
	Lifecycle Status
	Triage    TriageStatus
}

// AllStatuses matches every referral.
func AllStatuses() StatusFilter { return StatusFilter{Kind: FilterAll} }

// ByLifecycle matches on the lifecycle status.
func ByLifecycle(s Status) StatusFilter {
	return StatusFilter{Kind: FilterLifecycle, Lifecycle: s}
}

// ByTriage matches on the triage sub-state.
func ByTriage(t TriageStatus) StatusFilter {
	return StatusFilter{Kind: FilterTriage, Triage: t}
}

// ParseStatusFilter resolves a flat dropdown value to the tagged filter. A
// value naming a triage state filters on triage; anything else known filters
// on lifecycle; empty or "all" matches everything.
func ParseStatusFilter(value string) StatusFilter {
	if value == "" || value == "all" {
		return AllStatuses()
	}
	if t := TriageStatus(value); validTriageStatuses[t] && t != TriageNone && t != TriageDischarged {
		return ByTriage(t)
	}
	if s := Status(value); validStatuses[s] {
		return ByLifecycle(s)
	}
	if t := TriageStatus(value); validTriageStatuses[t] {
		return ByTriage(t)
	}
	return AllStatuses()
}

func (f StatusFilter) matches(r *Referral) bool {
	switch f.Kind {
	case FilterLifecycle:
		return r.Status == f.Lifecycle
	case FilterTriage:
		return r.TriageStatus == f.Triage
	default:
		return true
	}
}

// Filter is a conjunctive predicate set over referrals.
type Filter struct {
	Status    StatusFilter
	Priority  Priority // empty = any
	Specialty string   // empty = any
	Search    string   // empty = any
}

// Matches reports whether r passes every set predicate. Free-text search is a
// case-insensitive substring match ORed across patient name, NHS number, UBRN,
// and referral id.
func (f Filter) Matches(r *Referral) bool {
	if !f.Status.matches(r) {
		return false
	}
	if f.Priority != "" && r.Priority != f.Priority {
		return false
	}
	if f.Specialty != "" && r.Specialty != f.Specialty {
		return false
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(r.Patient.Name), term) &&
			!strings.Contains(strings.ToLower(r.Patient.NHSNumber), term) &&
			!strings.Contains(strings.ToLower(r.UBRN), term) &&
			!strings.Contains(strings.ToLower(r.ID.String()), term) {
			return false
		}
	}
	return true
}

// Apply returns the referrals passing the filter, preserving input order.
func (f Filter) Apply(items []*Referral) []*Referral {
	out := make([]*Referral, 0, len(items))
	for _, r := range items {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// SortKey enumerates the sortable fields. Nested fields get their own key and
// accessor instead of runtime path traversal.
type SortKey string

const (
	SortByCreated     SortKey = "created_at"
	SortByPatientName SortKey = "patient_name"
	SortByNHSNumber   SortKey = "nhs_number"
	SortByUBRN        SortKey = "ubrn"
	SortByPriority    SortKey = "priority"
	SortByStatus      SortKey = "status"
	SortBySpecialty   SortKey = "specialty"
	SortByReferrerOrg SortKey = "referrer_organization"
	SortByAgeDays     SortKey = "age_days"
	SortByDefault     SortKey = ""
)

var validSortKeys = map[SortKey]bool{
	SortByCreated:     true,
	SortByPatientName: true,
	SortByNHSNumber:   true,
	SortByUBRN:        true,
	SortByPriority:    true,
	SortByStatus:      true,
	SortBySpecialty:   true,
	SortByReferrerOrg: true,
	SortByAgeDays:     true,
	SortByDefault:     true,
}

// ValidSortKey reports whether key names a sortable field.
func ValidSortKey(key SortKey) bool { return validSortKeys[key] }

// priorityRank orders priorities by clinical urgency for sorting.
var priorityRank = map[Priority]int{
	PriorityEmergency: 0,
	PriorityUrgent:    1,
	PriorityRoutine:   2,
}

type accessor func(*Referral) string

var stringAccessors = map[SortKey]accessor{
	SortByPatientName: func(r *Referral) string { return r.Patient.Name },
	SortByNHSNumber:   func(r *Referral) string { return r.Patient.NHSNumber },
	SortByUBRN:        func(r *Referral) string { return r.UBRN },
	SortByStatus:      func(r *Referral) string { return string(r.Status) },
	SortBySpecialty:   func(r *Referral) string { return r.Specialty },
	SortByReferrerOrg: func(r *Referral) string { return r.Referrer.Organization },
}

// Sort orders items by key and direction in place. String keys compare
// case-folded. Equal keys fall back to creation date descending, then id, so
// the order is deterministic and desc is the exact reverse of asc.
func Sort(items []*Referral, key SortKey, ascending bool) {
	less := lessFunc(key)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch less(a, b) {
		case -1:
			return ascending
		case 1:
			return !ascending
		}
		return tieBreak(a, b)
	})
}

// DefaultOrder applies the resting sort: server-assigned display order when
// every item has one, else creation date descending.
func DefaultOrder(items []*Referral) {
	allOrdered := len(items) > 0
	for _, r := range items {
		if r.DisplayOrder == nil {
			allOrdered = false
			break
		}
	}
	if allOrdered {
		sort.SliceStable(items, func(i, j int) bool {
			if *items[i].DisplayOrder != *items[j].DisplayOrder {
				return *items[i].DisplayOrder < *items[j].DisplayOrder
			}
			return tieBreak(items[i], items[j])
		})
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
}

// lessFunc returns a three-way comparison for the key: -1 when a sorts before
// b ascending, 1 when after, 0 on ties.
func lessFunc(key SortKey) func(a, b *Referral) int {
	if acc, ok := stringAccessors[key]; ok {
		return func(a, b *Referral) int {
			av, bv := strings.ToLower(acc(a)), strings.ToLower(acc(b))
			return strings.Compare(av, bv)
		}
	}
	switch key {
	case SortByPriority:
		return func(a, b *Referral) int {
			return compareInt(priorityRank[a.Priority], priorityRank[b.Priority])
		}
	case SortByAgeDays:
		return func(a, b *Referral) int { return compareInt(a.AgeDays, b.AgeDays) }
	default: // SortByCreated and unknowns
		return func(a, b *Referral) int {
			switch {
			case a.CreatedAt.Before(b.CreatedAt):
				return -1
			case a.CreatedAt.After(b.CreatedAt):
				return 1
			}
			return 0
		}
	}
}

func tieBreak(a, b *Referral) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
