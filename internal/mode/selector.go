// Package mode maps a complexity profile to an execution mode. Select is a
// deterministic scoring function; rerunning it on the same profile always
// returns the same mode.
package mode

import (
	"math"

	"github.com/usemanusai/tce/model"
)

// Scoring constants. Waterfall favors low-complexity, low-parallelism,
// predictable task sets; CI-AR favors the opposite. When the two candidate
// scores are closer than tieMargin the hybrid strategy is selected.
const (
	complexityBandBoundary = 4.0

	complexityMatchPoints  = 0.3
	parallelMatchPoints    = 0.2
	uncertaintyMatchPoints = 0.2
	efficiencyBonusPoints  = 0.3

	waterfallEfficiency = 0.85
	ciarEfficiency      = 0.75

	parallelHighWater = 0.5
	parallelLowWater  = 0.3
	uncertaintyHigh   = 0.4
	uncertaintyLow    = 0.3

	// Distinct executor count above which the resource-efficiency bonus is
	// withheld for both candidates.
	efficientExecutorLimit = 5

	tieMargin = 0.1
)

// Select picks the execution mode for a profile. Ties between the two
// candidate modes resolve to hybrid.
func Select(profile model.ComplexityProfile) model.Mode {
	waterfall := scoreWaterfall(profile)
	ciar := scoreCIAR(profile)

	if math.Abs(waterfall-ciar) < tieMargin {
		return model.ModeHybrid
	}
	if waterfall > ciar {
		return model.ModeWaterfall
	}
	return model.ModeCIAR
}

// Scores returns the per-candidate scores. Exposed for observability: the
// engine logs them alongside the selected mode.
func Scores(profile model.ComplexityProfile) (waterfall, ciar float64) {
	return scoreWaterfall(profile), scoreCIAR(profile)
}

func scoreWaterfall(p model.ComplexityProfile) float64 {
	var score float64
	if p.WeightedComplexity <= complexityBandBoundary {
		score += complexityMatchPoints
	}
	if p.ParallelPotential <= parallelLowWater {
		score += parallelMatchPoints
	}
	if p.UncertaintyFactor <= uncertaintyLow {
		score += uncertaintyMatchPoints
	}
	if distinctExecutors(p) <= efficientExecutorLimit {
		score += efficiencyBonusPoints * waterfallEfficiency
	}
	return score
}

func scoreCIAR(p model.ComplexityProfile) float64 {
	var score float64
	if p.WeightedComplexity > complexityBandBoundary {
		score += complexityMatchPoints
	}
	if p.ParallelPotential > parallelHighWater {
		score += parallelMatchPoints
	}
	if p.UncertaintyFactor > uncertaintyHigh {
		score += uncertaintyMatchPoints
	}
	if distinctExecutors(p) <= efficientExecutorLimit {
		score += efficiencyBonusPoints * ciarEfficiency
	}
	return score
}

// distinctExecutors recovers the unique executor count implied by the
// diversity ratio. Rounding guards against float drift from the division in
// the analyzer.
func distinctExecutors(p model.ComplexityProfile) int {
	return int(math.Round(p.ExecutorDiversity * float64(p.TaskCount)))
}
