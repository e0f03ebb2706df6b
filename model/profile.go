package model

import "time"

// ComplexityProfile is the scalar and vector complexity assessment of a task
// set, derived once per workflow at creation and never mutated afterwards.
type ComplexityProfile struct {
	TaskCount              int           `json:"task_count"`
	DependencyRatio        float64       `json:"dependency_ratio"`
	ExecutorDiversity      float64       `json:"executor_diversity"`
	TotalEstimatedDuration time.Duration `json:"total_estimated_duration"`
	WeightedComplexity     float64       `json:"weighted_complexity"`
	ParallelPotential      float64       `json:"parallel_potential"`
	UncertaintyFactor      float64       `json:"uncertainty_factor"`
}
