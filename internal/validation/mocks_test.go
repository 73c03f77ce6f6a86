package validation_test

import (
	"context"
	"sync"

	"github.com/hal9000y/greetguard/internal/recipient"
	"github.com/hal9000y/greetguard/internal/validation"
)

// Ensure, that bindingMock does implement validation.Binding.
var _ validation.Binding = &bindingMock{}

// bindingMock is a mock implementation of validation.Binding.
type bindingMock struct {
	// BodyFunc mocks the Body method.
	BodyFunc func(ctx context.Context) (string, error)

	// OnContentChangedFunc mocks the OnContentChanged method.
	OnContentChangedFunc func(fn func()) func()

	// OnRecipientsChangedFunc mocks the OnRecipientsChanged method.
	OnRecipientsChangedFunc func(fn func()) func()

	// RecipientsFunc mocks the Recipients method.
	RecipientsFunc func(ctx context.Context) ([]recipient.Address, error)

	calls struct {
		Body []struct {
			Ctx context.Context
		}
		OnContentChanged []struct {
			Fn func()
		}
		OnRecipientsChanged []struct {
			Fn func()
		}
		Recipients []struct {
			Ctx context.Context
		}
	}
	lockBody                sync.RWMutex
	lockOnContentChanged    sync.RWMutex
	lockOnRecipientsChanged sync.RWMutex
	lockRecipients          sync.RWMutex
}

// Body calls BodyFunc.
func (mock *bindingMock) Body(ctx context.Context) (string, error) {
	if mock.BodyFunc == nil {
		panic("bindingMock.BodyFunc: method is nil but Binding.Body was just called")
	}
	callInfo := struct {
		Ctx context.Context
	}{
		Ctx: ctx,
	}
	mock.lockBody.Lock()
	mock.calls.Body = append(mock.calls.Body, callInfo)
	mock.lockBody.Unlock()
	return mock.BodyFunc(ctx)
}

// BodyCalls gets all the calls that were made to Body.
func (mock *bindingMock) BodyCalls() []struct {
	Ctx context.Context
} {
	mock.lockBody.RLock()
	defer mock.lockBody.RUnlock()
	return mock.calls.Body
}

// OnContentChanged calls OnContentChangedFunc.
func (mock *bindingMock) OnContentChanged(fn func()) func() {
	if mock.OnContentChangedFunc == nil {
		panic("bindingMock.OnContentChangedFunc: method is nil but Binding.OnContentChanged was just called")
	}
	callInfo := struct {
		Fn func()
	}{
		Fn: fn,
	}
	mock.lockOnContentChanged.Lock()
	mock.calls.OnContentChanged = append(mock.calls.OnContentChanged, callInfo)
	mock.lockOnContentChanged.Unlock()
	return mock.OnContentChangedFunc(fn)
}

// OnContentChangedCalls gets all the calls that were made to OnContentChanged.
func (mock *bindingMock) OnContentChangedCalls() []struct {
	Fn func()
} {
	mock.lockOnContentChanged.RLock()
	defer mock.lockOnContentChanged.RUnlock()
	return mock.calls.OnContentChanged
}

// OnRecipientsChanged calls OnRecipientsChangedFunc.
func (mock *bindingMock) OnRecipientsChanged(fn func()) func() {
	if mock.OnRecipientsChangedFunc == nil {
		panic("bindingMock.OnRecipientsChangedFunc: method is nil but Binding.OnRecipientsChanged was just called")
	}
	callInfo := struct {
		Fn func()
	}{
		Fn: fn,
	}
	mock.lockOnRecipientsChanged.Lock()
	mock.calls.OnRecipientsChanged = append(mock.calls.OnRecipientsChanged, callInfo)
	mock.lockOnRecipientsChanged.Unlock()
	return mock.OnRecipientsChangedFunc(fn)
}

// OnRecipientsChangedCalls gets all the calls that were made to OnRecipientsChanged.
func (mock *bindingMock) OnRecipientsChangedCalls() []struct {
	Fn func()
} {
	mock.lockOnRecipientsChanged.RLock()
	defer mock.lockOnRecipientsChanged.RUnlock()
	return mock.calls.OnRecipientsChanged
}

// Recipients calls RecipientsFunc.
func (mock *bindingMock) Recipients(ctx context.Context) ([]recipient.Address, error) {
	if mock.RecipientsFunc == nil {
		panic("bindingMock.RecipientsFunc: method is nil but Binding.Recipients was just called")
	}
	callInfo := struct {
		Ctx context.Context
	}{
		Ctx: ctx,
	}
	mock.lockRecipients.Lock()
	mock.calls.Recipients = append(mock.calls.Recipients, callInfo)
	mock.lockRecipients.Unlock()
	return mock.RecipientsFunc(ctx)
}

// RecipientsCalls gets all the calls that were made to Recipients.
func (mock *bindingMock) RecipientsCalls() []struct {
	Ctx context.Context
} {
	mock.lockRecipients.RLock()
	defer mock.lockRecipients.RUnlock()
	return mock.calls.Recipients
}
