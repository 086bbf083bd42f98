package engine

import (
	"math"
	"time"

	"github.com/claude/flexion/internal/models"
)

// Summarize computes the end-of-session summary from the immutable rep
// history. Pure aggregation for the reward collaborator: it never touches
// target state, and an empty history yields a zero summary.
func Summarize(ex Exercise, reps []models.RepRecord, elapsed time.Duration) models.SessionSummary {
	sum := models.SessionSummary{
		RepCount:    len(reps),
		DurationSec: elapsed.Seconds(),
	}
	if len(reps) == 0 {
		return sum
	}

	minMet, pushMet := 0, 0
	for _, r := range reps {
		if r.MinimumThresholdMet {
			minMet++
		}
		if r.PushTargetMet {
			pushMet++
		}
	}
	sum.CompletionRate = float64(minMet) / float64(len(reps))
	sum.PushRate = float64(pushMet) / float64(len(reps))

	extrema := repExtrema(reps)
	sum.Consistency = 1 - math.Min(stddev(extrema)/30, 1)

	lo, hi, best := extrema[0], extrema[0], extrema[0]
	for _, x := range extrema[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
		best = ex.Polarity.MoreExtreme(best, x)
	}
	sum.ROMSpan = hi - lo
	sum.BestExtremum = best
	return sum
}
