// Package events defines the lifecycle events published on the bus.
package events

import "time"

// AdmissionEvaluated is emitted once per checked operation, admitted or
// not. RejectionCode is empty when the operation was admitted.
type AdmissionEvaluated struct {
	OperationType string
	OperationName string
	Complexity    float64
	Depth         int
	Allowed       bool
	RejectionCode string
	Duration      time.Duration
}

// UpstreamFinish is emitted after an admitted request returns from the
// upstream GraphQL executor.
type UpstreamFinish struct {
	Status   int
	Err      error
	Duration time.Duration
}
