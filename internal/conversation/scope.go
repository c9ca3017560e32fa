package conversation

import (
	"context"
	"errors"
)

// Scope is the cancellable context of one stage. It is derived from the
// process context, so cancelling a Scope never affects the process or the
// next stage's Scope.
type Scope struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewScope returns a Scope derived from parent.
func NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancelCause(parent)
	return &Scope{parent: parent, ctx: ctx, cancel: cancel}
}

// Context returns the stage context.
func (s *Scope) Context() context.Context { return s.ctx }

// Hangup cancels the stage with [ErrHangup].
func (s *Scope) Hangup() { s.cancel(ErrHangup) }

// Cancel cancels the stage with cause.
func (s *Scope) Cancel(cause error) { s.cancel(cause) }

// Close releases the Scope. Call it when the stage ends.
func (s *Scope) Close() { s.cancel(context.Canceled) }

// Cause reports why the stage context ended: [ErrShutdown] when the process
// context is done, otherwise the cause it was cancelled with. It returns nil
// while the stage is live.
func (s *Scope) Cause() error {
	if s.parent.Err() != nil {
		return ErrShutdown
	}
	if s.ctx.Err() == nil {
		return nil
	}
	return context.Cause(s.ctx)
}

// classify maps err from a stage operation to the stage outcome: the scope's
// cancellation cause when the scope has ended, else err itself.
func (s *Scope) classify(err error) error {
	if err == nil {
		return nil
	}
	if cause := s.Cause(); cause != nil {
		if errors.Is(cause, ErrShutdown) || errors.Is(cause, ErrHangup) || errors.Is(cause, errBargeIn) {
			return cause
		}
	}
	return err
}
