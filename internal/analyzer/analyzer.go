// Package analyzer computes the complexity profile of a task set. Analyze is
// a pure function: the same task list always yields an identical profile, and
// nothing outside the returned value is touched.
package analyzer

import (
	"time"

	"github.com/usemanusai/tce/model"
)

// Complexity weights per priority level.
var complexityWeights = map[model.Priority]float64{
	model.PriorityLow:      1,
	model.PriorityMedium:   2,
	model.PriorityHigh:     4,
	model.PriorityCritical: 8,
}

// Tasks with more than this many dependencies contribute to the uncertainty
// factor.
const deepDependencyThreshold = 3

// Analyze derives a complexity profile from a task set. An empty task list
// yields the zero profile.
func Analyze(tasks []model.Task) model.ComplexityProfile {
	if len(tasks) == 0 {
		return model.ComplexityProfile{}
	}

	n := float64(len(tasks))

	var (
		edges       int
		rootTasks   int
		weightSum   float64
		uncertain   int
		totalEffort time.Duration
	)
	executors := make(map[string]struct{}, len(tasks))

	for _, t := range tasks {
		edges += len(t.Dependencies)
		if len(t.Dependencies) == 0 {
			rootTasks++
		}
		if len(t.Dependencies) > deepDependencyThreshold {
			uncertain++
		}

		executors[t.Executor] = struct{}{}

		if w, ok := complexityWeights[t.Priority]; ok {
			weightSum += w
		} else {
			weightSum += complexityWeights[model.PriorityLow]
		}
		if t.Priority == model.PriorityHigh || t.Priority == model.PriorityCritical {
			uncertain++
		}

		timeout := t.Timeout
		if timeout <= 0 {
			timeout = model.DefaultTaskTimeout
		}
		totalEffort += timeout
	}

	uncertainty := float64(uncertain) / (2 * n)
	if uncertainty > 1 {
		uncertainty = 1
	}

	return model.ComplexityProfile{
		TaskCount:              len(tasks),
		DependencyRatio:        float64(edges) / n,
		ExecutorDiversity:      float64(len(executors)) / n,
		TotalEstimatedDuration: totalEffort,
		WeightedComplexity:     weightSum / n,
		ParallelPotential:      float64(rootTasks) / n,
		UncertaintyFactor:      uncertainty,
	}
}
