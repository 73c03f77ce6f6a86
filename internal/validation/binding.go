package validation

import (
	"context"

	"github.com/hal9000y/greetguard/internal/recipient"
)

// Binding is the mail client surface an Orchestrator reads from. Errors should be *fault.Error
// so retries can tell permission failures from transient ones.
type Binding interface {
	Body(ctx context.Context) (string, error)
	Recipients(ctx context.Context) ([]recipient.Address, error)
	// OnContentChanged registers fn for host body edits; the returned func unregisters it.
	OnContentChanged(fn func()) func()
	OnRecipientsChanged(fn func()) func()
}

// Listener receives pass notifications. Calls come from the goroutine running the pass.
type Listener interface {
	OnValidationStarted()
	OnValidationComplete(results []Result)
	OnValidationError(err error)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Started  func()
	Complete func(results []Result)
	Error    func(err error)
}

func (l ListenerFuncs) OnValidationStarted() {
	if l.Started != nil {
		l.Started()
	}
}

func (l ListenerFuncs) OnValidationComplete(results []Result) {
	if l.Complete != nil {
		l.Complete(results)
	}
}

func (l ListenerFuncs) OnValidationError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}
