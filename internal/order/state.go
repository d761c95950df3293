package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/backend-atelier/internal/shipping"
)

// ErrInvalidState is returned when a state change is not allowed from the current state.
var ErrInvalidState = errors.New("order state does not allow this change")

// Status discriminates order states.
type Status string

const (
	StatusDraft               Status = "draft"
	StatusWaitingBankTransfer Status = "waitingBankTransfer"
	StatusPaid                Status = "paid"
)

// PaymentMethod identifies how a paid order was settled.
type PaymentMethod string

const (
	PaymentCard         PaymentMethod = "card"
	PaymentBankTransfer PaymentMethod = "bank-transfer"
)

// State is implemented by Draft, WaitingBankTransfer and Paid.
type State interface {
	Status() Status
	isState()
}

// Draft orders are priced but not yet submitted for payment.
type Draft struct{}

// WaitingBankTransfer orders await a manual bank transfer.
type WaitingBankTransfer struct{}

// Paid orders carry how and when they were paid and where production stands.
type Paid struct {
	PaymentMethod PaymentMethod
	PaidAt        time.Time
	WorkflowStep  shipping.WorkflowStep
}

func (Draft) Status() Status               { return StatusDraft }
func (WaitingBankTransfer) Status() Status { return StatusWaitingBankTransfer }
func (Paid) Status() Status                { return StatusPaid }

func (Draft) isState()               {}
func (WaitingBankTransfer) isState() {}
func (Paid) isState()                {}

// NewPaid builds a freshly paid state at the start of production.
func NewPaid(method PaymentMethod, at time.Time) Paid {
	return Paid{PaymentMethod: method, PaidAt: at.UTC(), WorkflowStep: shipping.StepInProduction}
}

// MarkPaid moves a waiting bank transfer order to paid.
func MarkPaid(current State, at time.Time) (Paid, error) {
	switch current.(type) {
	case WaitingBankTransfer:
		return NewPaid(PaymentBankTransfer, at), nil
	default:
		return Paid{}, fmt.Errorf("%w: cannot mark %s order as paid", ErrInvalidState, statusOf(current))
	}
}

// Advance moves a paid order to the next workflow step.
func Advance(current State, next shipping.WorkflowStep) (Paid, error) {
	paid, ok := current.(Paid)
	if !ok {
		return Paid{}, fmt.Errorf("%w: %s orders have no workflow", ErrInvalidState, statusOf(current))
	}
	if !next.Valid() {
		return Paid{}, fmt.Errorf("%w: unknown workflow step %q", ErrInvalidState, next)
	}
	if !shipping.AllowedTransition(paid.WorkflowStep, next) {
		return Paid{}, fmt.Errorf("%w: %s -> %s: %w", ErrInvalidState, paid.WorkflowStep, next, shipping.ErrInvalidTransition)
	}
	paid.WorkflowStep = next
	return paid, nil
}

func statusOf(s State) Status {
	if s == nil {
		return ""
	}
	return s.Status()
}

type stateJSON struct {
	Status        Status                `json:"status"`
	PaymentMethod PaymentMethod         `json:"paymentMethod,omitempty"`
	PaidAt        *time.Time            `json:"paidAt,omitempty"`
	WorkflowStep  shipping.WorkflowStep `json:"workflowStep,omitempty"`
}

func encodeState(s State) stateJSON {
	switch st := s.(type) {
	case Paid:
		at := st.PaidAt
		return stateJSON{Status: StatusPaid, PaymentMethod: st.PaymentMethod, PaidAt: &at, WorkflowStep: st.WorkflowStep}
	case nil:
		return stateJSON{Status: StatusDraft}
	default:
		return stateJSON{Status: st.Status()}
	}
}

func decodeState(raw stateJSON) (State, error) {
	switch raw.Status {
	case StatusDraft, "":
		return Draft{}, nil
	case StatusWaitingBankTransfer:
		return WaitingBankTransfer{}, nil
	case StatusPaid:
		if raw.PaidAt == nil || raw.PaymentMethod == "" {
			return nil, fmt.Errorf("%w: paid order without payment details", ErrInvalidState)
		}
		step := raw.WorkflowStep
		if step == "" {
			step = shipping.StepInProduction
		}
		return Paid{PaymentMethod: raw.PaymentMethod, PaidAt: *raw.PaidAt, WorkflowStep: step}, nil
	}
	return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidState, raw.Status)
}

// MarshalState encodes a state as a flat JSON object.
func MarshalState(s State) ([]byte, error) {
	return json.Marshal(encodeState(s))
}

// UnmarshalState decodes a state encoded by MarshalState.
func UnmarshalState(data []byte) (State, error) {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return decodeState(raw)
}
