package shared

import "errors"

var (
	// ErrNotFound indicates a referenced part, consumable, batch, loan or
	// adjustment does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates the requested quantity exceeds a
	// consumable's (or tank's) available balance.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientBatchStock indicates the requested quantity exceeds a
	// single batch's remaining quantity.
	ErrInsufficientBatchStock = errors.New("insufficient batch stock")
	// ErrOverReturn indicates a return quantity exceeds the outstanding
	// loaned quantity.
	ErrOverReturn = errors.New("return exceeds outstanding loaned quantity")
	// ErrInvalidState indicates an operation against an object whose current
	// state forbids it.
	ErrInvalidState = errors.New("invalid state for operation")
	// ErrValidation indicates malformed or missing required input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UserSafeMessage maps an error to a message that can be shown to API
// consumers without leaking internals.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "the referenced resource does not exist"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient stock for the requested quantity"
	case errors.Is(err, ErrInsufficientBatchStock):
		return "the selected batch does not hold enough remaining quantity"
	case errors.Is(err, ErrOverReturn):
		return "return quantity exceeds what is still on loan"
	case errors.Is(err, ErrInvalidState):
		return "the operation is not allowed in the current state"
	case errors.Is(err, ErrValidation):
		return "the request contains invalid or missing fields"
	case errors.Is(err, ErrInvalidCredentials):
		return "email or password is incorrect"
	default:
		return "an unexpected error occurred"
	}
}
