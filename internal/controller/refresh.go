package controller

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Coordinator turns "profiles may have changed" signals into refreshes.
// Requests that arrive while a refresh is pending are merged into it.
type Coordinator struct {
	ctrl     *Controller
	requests chan struct{}
	onResult func(error)
	log      *zap.Logger
}

// NewCoordinator returns a coordinator for ctrl. onResult, if set, is called
// after every refresh attempt.
func NewCoordinator(ctrl *Controller, onResult func(error)) *Coordinator {
	return &Coordinator{
		ctrl:     ctrl,
		requests: make(chan struct{}, 1),
		onResult: onResult,
		log:      ctrl.log.Named("refresh"),
	}
}

// RequestRefresh asks for a refresh without waiting for it.
func (co *Coordinator) RequestRefresh() {
	select {
	case co.requests <- struct{}{}:
	default:
	}
}

// Run refreshes once per request or signal on changed until ctx is done or
// the handle is invalidated. A nil changed channel is allowed.
func (co *Coordinator) Run(ctx context.Context, changed <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-co.ctrl.Terminated():
			return ErrChannelUnavailable
		case <-co.requests:
		case _, ok := <-changed:
			if !ok {
				changed = nil
				continue
			}
		}

		err := co.ctrl.Refresh(ctx)
		if co.onResult != nil {
			co.onResult(err)
		}
		if errors.Is(err, ErrChannelUnavailable) {
			return err
		}
		if err != nil && ctx.Err() == nil {
			co.log.Debug("refresh failed", zap.Error(err))
		}
	}
}
