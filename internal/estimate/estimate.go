// Package estimate derives inbox statistics and a recommended scan depth
// from one scan's sample.
package estimate

import (
	"math"

	"inboxsweep/internal/model"
)

// Unbounded is the tier meaning "scan the whole inbox".
const Unbounded = 0

// TargetNewsletters is how many newsletters a recommended scan should surface.
const TargetNewsletters = 40

// Tiers are the finite scan depths offered, ascending.
var Tiers = []int{50, 100, 250, 500, 1000}

// Estimate extrapolates the newsletter count to the whole mailbox and
// recommends the smallest tier expected to surface TargetNewsletters.
func Estimate(totalMessages, scannedMessages, foundNewsletters int) model.InboxStats {
	stats := model.InboxStats{
		TotalEmails:      totalMessages,
		ScannedEmails:    scannedMessages,
		FoundNewsletters: foundNewsletters,
		RecommendedLimit: Unbounded,
	}
	if scannedMessages <= 0 {
		return stats
	}
	ratio := float64(foundNewsletters) / float64(scannedMessages)
	stats.EstimatedNewsletters = int(math.Round(float64(totalMessages) * ratio))
	stats.RecommendedLimit = Recommend(totalMessages, ratio)
	return stats
}

// Recommend returns the smallest tier whose expected yield at ratio reaches
// TargetNewsletters. A tier that already covers the whole mailbox also
// qualifies, since scanning deeper cannot surface more.
func Recommend(totalMessages int, ratio float64) int {
	for _, tier := range Tiers {
		if totalMessages > 0 && tier >= totalMessages {
			return tier
		}
		if ratio > 0 && float64(tier)*ratio >= TargetNewsletters {
			return tier
		}
	}
	return Unbounded
}
