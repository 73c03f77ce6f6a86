package gservice_test

import (
	"context"
	"sync"

	"google.golang.org/api/gmail/v1"
)

// draftGetterMock is a mock implementation of the draft reader used by gservice.DraftBinding.
type draftGetterMock struct {
	// GetDraftFunc mocks the GetDraft method.
	GetDraftFunc func(ctx context.Context, draftID string) (*gmail.Draft, error)

	calls struct {
		GetDraft []struct {
			Ctx     context.Context
			DraftID string
		}
	}
	lockGetDraft sync.RWMutex
}

// GetDraft calls GetDraftFunc.
func (mock *draftGetterMock) GetDraft(ctx context.Context, draftID string) (*gmail.Draft, error) {
	if mock.GetDraftFunc == nil {
		panic("draftGetterMock.GetDraftFunc: method is nil but draftGetter.GetDraft was just called")
	}
	callInfo := struct {
		Ctx     context.Context
		DraftID string
	}{
		Ctx:     ctx,
		DraftID: draftID,
	}
	mock.lockGetDraft.Lock()
	mock.calls.GetDraft = append(mock.calls.GetDraft, callInfo)
	mock.lockGetDraft.Unlock()
	return mock.GetDraftFunc(ctx, draftID)
}

// GetDraftCalls gets all the calls that were made to GetDraft.
func (mock *draftGetterMock) GetDraftCalls() []struct {
	Ctx     context.Context
	DraftID string
} {
	mock.lockGetDraft.RLock()
	defer mock.lockGetDraft.RUnlock()
	return mock.calls.GetDraft
}
