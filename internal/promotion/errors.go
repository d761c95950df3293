package promotion

import "errors"

var (
	// ErrNotFound is returned when no promotion code matches the submitted code.
	ErrNotFound = errors.New("promotion code not found")
	// ErrExpired is returned when the code's validity window has ended.
	ErrExpired = errors.New("promotion code expired")
	// ErrExhausted is returned when the code reached its usage limit.
	ErrExhausted = errors.New("promotion code usage limit reached")
	// ErrBelowMinimum is returned when the filtered subtotal is below the code's minimum amount.
	ErrBelowMinimum = errors.New("promotion code minimum amount not met")
	// ErrInvalidFilterCombination is returned for free shipping codes that carry item filters.
	ErrInvalidFilterCombination = errors.New("free shipping promotion codes cannot have filters")
	// ErrInvalidDefinition is returned when an admin definition fails validation.
	ErrInvalidDefinition = errors.New("invalid promotion code definition")
	// ErrDuplicate is returned when creating a code that already exists.
	ErrDuplicate = errors.New("promotion code already exists")
	// ErrInUse is returned when deleting a code that has already been redeemed.
	ErrInUse = errors.New("promotion code has been used and cannot be deleted")
)

// Kind maps an evaluation error to its wire code. Unknown errors map to "".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, ErrExhausted):
		return "EXHAUSTED"
	case errors.Is(err, ErrBelowMinimum):
		return "BELOW_MINIMUM"
	case errors.Is(err, ErrInvalidFilterCombination):
		return "INVALID_FILTER_COMBINATION"
	case errors.Is(err, ErrInvalidDefinition):
		return "INVALID_DEFINITION"
	case errors.Is(err, ErrDuplicate):
		return "CONFLICT"
	case errors.Is(err, ErrInUse):
		return "IN_USE"
	}
	return ""
}
