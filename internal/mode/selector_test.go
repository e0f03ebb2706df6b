package mode

import (
	"math"
	"testing"

	"github.com/usemanusai/tce/model"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		profile model.ComplexityProfile
		want    model.Mode
	}{
		{
			name: "simple sequential set picks waterfall",
			profile: model.ComplexityProfile{
				TaskCount:          3,
				ExecutorDiversity:  1.0 / 3.0,
				WeightedComplexity: 2,
				ParallelPotential:  0.2,
				UncertaintyFactor:  0.1,
			},
			want: model.ModeWaterfall,
		},
		{
			name: "complex parallel set picks ci-ar",
			profile: model.ComplexityProfile{
				TaskCount:          10,
				ExecutorDiversity:  0.3,
				WeightedComplexity: 6,
				ParallelPotential:  0.8,
				UncertaintyFactor:  0.6,
			},
			want: model.ModeCIAR,
		},
		{
			name: "mixed signals resolve to hybrid",
			profile: model.ComplexityProfile{
				TaskCount:          4,
				ExecutorDiversity:  0.5,
				WeightedComplexity: 3,
				ParallelPotential:  0.6,
				UncertaintyFactor:  0.5,
			},
			want: model.ModeHybrid,
		},
		{
			name:    "zero profile picks waterfall",
			profile: model.ComplexityProfile{},
			want:    model.ModeWaterfall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Select(tt.profile); got != tt.want {
				w, c := Scores(tt.profile)
				t.Fatalf("Select = %s, want %s (waterfall %.3f, ci-ar %.3f)", got, tt.want, w, c)
			}
		})
	}
}

func TestScoresComplexityBandBoundary(t *testing.T) {
	base := model.ComplexityProfile{
		TaskCount:         5,
		ExecutorDiversity: 0.2,
		ParallelPotential: 0.4,
		UncertaintyFactor: 0.35,
	}

	// Weighted complexity of exactly 4 sits inside the waterfall band.
	inBand := base
	inBand.WeightedComplexity = 4
	wIn, cIn := Scores(inBand)

	outBand := base
	outBand.WeightedComplexity = 4.01
	wOut, cOut := Scores(outBand)

	if diff := wIn - wOut; math.Abs(diff-0.3) > 1e-9 {
		t.Errorf("waterfall band points = %v, want 0.3", diff)
	}
	if diff := cOut - cIn; math.Abs(diff-0.3) > 1e-9 {
		t.Errorf("ci-ar band points = %v, want 0.3", diff)
	}
}

func TestScoresEfficiencyBonusWithheld(t *testing.T) {
	profile := model.ComplexityProfile{
		TaskCount:          10,
		ExecutorDiversity:  0.7,
		WeightedComplexity: 2,
		ParallelPotential:  0.2,
		UncertaintyFactor:  0.2,
	}

	w, c := Scores(profile)
	if math.Abs(w-0.7) > 1e-9 {
		t.Errorf("waterfall score = %v, want 0.7 without efficiency bonus", w)
	}
	if math.Abs(c) > 1e-9 {
		t.Errorf("ci-ar score = %v, want 0", c)
	}
}

func TestScoresEfficiencyBonusApplied(t *testing.T) {
	lean := model.ComplexityProfile{
		TaskCount:          10,
		ExecutorDiversity:  0.5,
		WeightedComplexity: 5,
		ParallelPotential:  0.4,
		UncertaintyFactor:  0.35,
	}
	sprawling := lean
	sprawling.ExecutorDiversity = 0.6

	wLean, cLean := Scores(lean)
	wSprawl, cSprawl := Scores(sprawling)

	if diff := wLean - wSprawl; math.Abs(diff-0.3*0.85) > 1e-9 {
		t.Errorf("waterfall efficiency bonus = %v, want 0.255", diff)
	}
	if diff := cLean - cSprawl; math.Abs(diff-0.3*0.75) > 1e-9 {
		t.Errorf("ci-ar efficiency bonus = %v, want 0.225", diff)
	}
}
