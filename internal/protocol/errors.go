package protocol

import "errors"

// Reason codes attached to ledger entries and startup failures.
const (
	// Host call validation.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidTarget = "E_INVALID_TARGET"

	// Container / registry state.
	ErrNoContainer     = "E_NO_CONTAINER"
	ErrNotOperational  = "E_NOT_OPERATIONAL"
	ErrFilterRejected  = "E_FILTER_REJECTED"
	ErrAlreadyPlaced   = "E_ALREADY_PLACED"
	ErrNotPlaced       = "E_NOT_PLACED"
	ErrNoResource      = "E_NO_RESOURCE"
	ErrNoStuff         = "E_NO_STUFF"
	ErrMissingArea     = "E_MISSING_AREA"
	ErrUnknownItemKind = "E_UNKNOWN_ITEM_KIND"

	// Dispatcher.
	ErrMissingAdapter = "E_MISSING_ADAPTER"
	ErrHookPanic      = "E_HOOK_PANIC"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:      {},
	ErrInvalidTarget:   {},
	ErrNoContainer:     {},
	ErrNotOperational:  {},
	ErrFilterRejected:  {},
	ErrAlreadyPlaced:   {},
	ErrNotPlaced:       {},
	ErrNoResource:      {},
	ErrNoStuff:         {},
	ErrMissingArea:     {},
	ErrUnknownItemKind: {},
	ErrMissingAdapter:  {},
	ErrHookPanic:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Error carries a reason code alongside a human readable message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func NewError(code, msg string) *Error { return &Error{Code: code, Message: msg} }

// CodeOf returns the reason code of err, or ErrInternal for foreign errors.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrInternal
}
