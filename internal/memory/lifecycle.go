package memory

import "time"

// Lifecycle constants. Relevance drains at a fixed rate per idle week,
// facts below the cleanup threshold are sweep candidates, and a staged
// fact is confirmed once it has been accessed three times.
const (
	DefaultConfidence  = 0.5
	DecayRatePerWeek   = 0.05
	CleanupThreshold   = 0.2
	PromotionThreshold = 3
)

const hoursPerWeek = 24 * 7

// Touched returns the fact after one reinforcement: the access counter
// and timestamp advance, and a staged fact that has now been accessed
// PromotionThreshold times is promoted to confirmed. Promotion is
// one-way; confirmed, superseded, and retracted facts keep their status.
func Touched(f Fact, now time.Time) Fact {
	f.AccessCount++
	f.LastAccessed = now
	if f.Status == StatusStaged && f.AccessCount >= PromotionThreshold {
		f.Status = StatusConfirmed
	}
	return f
}

// DecayRelevance applies the decay rule to a relevance score: the score
// loses DecayRatePerWeek per idle week, floored at zero. Negative idle
// time counts as zero, so decay can never raise a score.
func DecayRelevance(relevance, weeksInactive float64) float64 {
	if weeksInactive <= 0 {
		return relevance
	}
	decayed := relevance - DecayRatePerWeek*weeksInactive
	if decayed < 0.0 {
		return 0.0
	}
	return decayed
}

// WeeksInactive returns the fractional number of weeks between the
// fact's last access and now.
func WeeksInactive(f Fact, now time.Time) float64 {
	return now.Sub(f.LastAccessed).Hours() / hoursPerWeek
}

// Decayed returns the fact with its relevance decayed for the idle time
// elapsed since its last access. Decay touches nothing else: the status
// stays, and the decay clock (LastAccessed) is only reset by Touched.
func Decayed(f Fact, now time.Time) Fact {
	f.Relevance = DecayRelevance(f.Relevance, WeeksInactive(f, now))
	return f
}

// CleanupCandidate reports whether the fact's relevance has collapsed
// below the cleanup threshold.
func CleanupCandidate(f Fact) bool {
	return f.Relevance < CleanupThreshold
}
