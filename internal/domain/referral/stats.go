package referral

import (
	"sort"
	"time"
)

// SpecialtyStats is the per-specialty breakdown shown on the admin dashboard.
type SpecialtyStats struct {
	Specialty       string  `json:"specialty"`
	Total           int     `json:"total"`
	New             int     `json:"new"`
	Accepted        int     `json:"accepted"`
	Rejected        int     `json:"rejected"`
	PreAssessment   int     `json:"pre_assessment"`
	Assessed        int     `json:"assessed"`
	WaitingList     int     `json:"waiting_list"`
	PreAdmission    int     `json:"pre_admission"`
	ReferToOther    int     `json:"refer_to_other"`
	AverageWaitDays float64 `json:"average_wait_days"`
	LongestWaitDays int     `json:"longest_wait_days"`
}

// Stats is the full aggregation output: per-specialty records ordered by
// total descending, plus one overall summary.
type Stats struct {
	Specialties []*SpecialtyStats `json:"specialties"`
	Overall     SpecialtyStats    `json:"overall"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// WaitStartFunc resolves the waiting-list clock start for a referral. It lets
// the caller use the waiting-list entry's added-at when one exists; when nil,
// or when it returns the zero time, the referral creation date is used.
type WaitStartFunc func(r *Referral) time.Time

// Aggregate reduces a referral list into per-specialty and overall counts in a
// single pass, then computes wait-day statistics over the waiting-list subset.
// Referrals without a specialty are grouped under "Unspecified". Empty input
// yields zeroed output rather than a division by zero.
func Aggregate(items []*Referral, now time.Time, waitStart WaitStartFunc) *Stats {
	bySpecialty := make(map[string]*SpecialtyStats)
	var order []string

	stats := &Stats{GeneratedAt: now}

	bucket := func(name string) *SpecialtyStats {
		if name == "" {
			name = "Unspecified"
		}
		s, ok := bySpecialty[name]
		if !ok {
			s = &SpecialtyStats{Specialty: name}
			bySpecialty[name] = s
			order = append(order, name)
		}
		return s
	}

	for _, r := range items {
		s := bucket(r.Specialty)
		tally(s, r)
		tally(&stats.Overall, r)
	}

	// Wait-day stats only cover referrals currently on a waiting list.
	waitSums := make(map[string]int)
	waitCounts := make(map[string]int)
	overallSum, overallCount := 0, 0
	for _, r := range items {
		if r.TriageStatus != TriageWaitingList {
			continue
		}
		start := r.CreatedAt
		if waitStart != nil {
			if ws := waitStart(r); !ws.IsZero() {
				start = ws
			}
		}
		days := int(now.Sub(start) / (24 * time.Hour))
		if days < 0 {
			days = 0
		}
		name := r.Specialty
		if name == "" {
			name = "Unspecified"
		}
		waitSums[name] += days
		waitCounts[name]++
		overallSum += days
		overallCount++
		if days > bySpecialty[name].LongestWaitDays {
			bySpecialty[name].LongestWaitDays = days
		}
		if days > stats.Overall.LongestWaitDays {
			stats.Overall.LongestWaitDays = days
		}
	}
	for name, s := range bySpecialty {
		if waitCounts[name] > 0 {
			s.AverageWaitDays = float64(waitSums[name]) / float64(waitCounts[name])
		}
	}
	if overallCount > 0 {
		stats.Overall.AverageWaitDays = float64(overallSum) / float64(overallCount)
	}

	stats.Specialties = make([]*SpecialtyStats, 0, len(order))
	for _, name := range order {
		stats.Specialties = append(stats.Specialties, bySpecialty[name])
	}
	sort.SliceStable(stats.Specialties, func(i, j int) bool {
		if stats.Specialties[i].Total != stats.Specialties[j].Total {
			return stats.Specialties[i].Total > stats.Specialties[j].Total
		}
		return stats.Specialties[i].Specialty < stats.Specialties[j].Specialty
	})
	return stats
}

func tally(s *SpecialtyStats, r *Referral) {
	s.Total++
	switch r.Status {
	case StatusNew:
		s.New++
	case StatusAccepted:
		s.Accepted++
	case StatusRejected:
		s.Rejected++
	}
	switch r.TriageStatus {
	case TriagePreAssess:
		s.PreAssessment++
	case TriageAssessed:
		s.Assessed++
	case TriageWaitingList:
		s.WaitingList++
	case TriagePreAdmission:
		s.PreAdmission++
	case TriageReferToOther:
		s.ReferToOther++
	}
}
