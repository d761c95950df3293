package shipping

import "errors"

// ErrInvalidTransition is returned when a workflow step change would break the state machine.
var ErrInvalidTransition = errors.New("invalid workflow step transition")

// WorkflowStep tracks a paid order from the workshop to the customer.
type WorkflowStep string

const (
	StepInProduction WorkflowStep = "in-production"
	StepInDelivery   WorkflowStep = "in-delivery"
	StepDelivered    WorkflowStep = "delivered"
)

// Valid reports whether s is a known step.
func (s WorkflowStep) Valid() bool {
	return s.rank() >= 0
}

func (s WorkflowStep) rank() int {
	switch s {
	case StepInProduction:
		return 0
	case StepInDelivery:
		return 1
	case StepDelivered:
		return 2
	}
	return -1
}

// AllowedTransition reports whether an order may move from current to next.
// Steps only move forward; pickup orders may go straight to delivered.
func AllowedTransition(current, next WorkflowStep) bool {
	if current == next {
		return true
	}
	switch current {
	case StepInProduction:
		return next == StepInDelivery || next == StepDelivered
	case StepInDelivery:
		return next == StepDelivered
	default:
		return false
	}
}
