package lpa

import (
	"errors"
	"fmt"
)

// Result reasons reported by the eUICC when it refuses a command.
const (
	ReasonNotFound           = "iccid_or_aid_not_found"
	ReasonNotDisabled        = "profile_not_in_disabled_state"
	ReasonNotEnabled         = "profile_not_in_enabled_state"
	ReasonDisallowed         = "disallowed_by_policy"
	ReasonWrongReenabling    = "wrong_profile_reenabling"
	ReasonCatBusy            = "cat_busy"
	ReasonInvalidRequest     = "invalid_request"
	ReasonNicknameTooLong    = "nickname_too_long"
	ReasonUndefined          = "undefined_error"
	ReasonMatchingIDRefused  = "matching_id_refused"
	ReasonConfirmationNeeded = "confirmation_code_required"
)

// rejectedReasons are card or server answers that will not change if the
// same command is sent again.
var rejectedReasons = map[string]bool{
	ReasonNotFound:           true,
	ReasonNotDisabled:        true,
	ReasonNotEnabled:         true,
	ReasonDisallowed:         true,
	ReasonWrongReenabling:    true,
	ReasonInvalidRequest:     true,
	ReasonNicknameTooLong:    true,
	ReasonMatchingIDRefused:  true,
	ReasonConfirmationNeeded: true,
}

// Error is a failed LPA command.
type Error struct {
	Op      string // enable, disable, nickname, delete, list, download
	Message string // the failing LPA step, e.g. es10c_enable_profile
	Reason  string // result reason, empty for transport failures
	Err     error  // underlying process or I/O error, if any
}

func (e *Error) Error() string {
	msg := "lpa " + e.Op
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Rejected reports whether the card refused the command for a reason that
// retrying with the same input cannot fix.
func (e *Error) Rejected() bool {
	return rejectedReasons[e.Reason]
}

// IsRejected reports whether err is, or wraps, a rejected *Error.
func IsRejected(err error) bool {
	var lerr *Error
	return errors.As(err, &lerr) && lerr.Rejected()
}

func rejected(op, reason string) error {
	return &Error{Op: op, Reason: reason}
}

func transportErr(op string, err error) error {
	return &Error{Op: op, Err: fmt.Errorf("transport: %w", err)}
}
