package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/ruminaider/euiccctl/internal/channel"
	"github.com/ruminaider/euiccctl/internal/lpa"
)

var (
	// ErrBusy is returned when another operation holds the slot's channel.
	ErrBusy = errors.New("another operation is in progress on this slot")

	// ErrChannelUnavailable is returned once the handle has been
	// invalidated. The slot has to be re-acquired.
	ErrChannelUnavailable = channel.ErrUnavailable

	// ErrUnknownProfile is returned when the ICCID is not in the last
	// fetched profile list.
	ErrUnknownProfile = errors.New("profile not found on this slot")
)

// Kind tells a caller whether retrying an operation can help.
type Kind int

const (
	// Transient failures come from the transport; retrying may succeed.
	Transient Kind = iota
	// Rejected failures were refused by the card or failed validation;
	// retrying with the same input will fail again.
	Rejected
)

func (k Kind) String() string {
	if k == Rejected {
		return "rejected"
	}
	return "transient"
}

// OperationError is a mutating operation that did not complete.
type OperationError struct {
	Op    string
	ICCID string
	Kind  Kind
	Err   error
}

func (e *OperationError) Error() string {
	if e.ICCID != "" {
		return fmt.Sprintf("%s %s failed (%s): %v", e.Op, e.ICCID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// FetchError is a refresh that did not complete. The store still holds the
// previous snapshot.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return "fetching profiles: " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the same call may succeed later: the slot
// was busy, or the failure was transient.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrBusy) {
		return true
	}
	if errors.Is(err, ErrChannelUnavailable) {
		return false
	}
	var oerr *OperationError
	if errors.As(err, &oerr) {
		return oerr.Kind == Transient
	}
	var ferr *FetchError
	return errors.As(err, &ferr)
}

func classify(op, iccid string, err error) *OperationError {
	kind := Transient
	if lpa.IsRejected(err) {
		kind = Rejected
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = Transient
	}
	return &OperationError{Op: op, ICCID: iccid, Kind: kind, Err: err}
}

func rejectedErr(op, iccid string, err error) *OperationError {
	return &OperationError{Op: op, ICCID: iccid, Kind: Rejected, Err: err}
}

// outcomeLabel is the metrics label for a finished operation.
func outcomeLabel(o Outcome, err error) string {
	if err == nil {
		if o == RestartRequired {
			return "restart_required"
		}
		return "ok"
	}
	if errors.Is(err, ErrBusy) {
		return "busy"
	}
	if errors.Is(err, ErrChannelUnavailable) {
		return "unavailable"
	}
	var oerr *OperationError
	if errors.As(err, &oerr) {
		return oerr.Kind.String()
	}
	return "error"
}
