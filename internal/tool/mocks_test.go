package tool_test

import (
	"context"
	"sync"

	"google.golang.org/api/gmail/v1"
)

// draftSvcMock is a mock implementation of the draft service used by tool.NewServer.
type draftSvcMock struct {
	// GetDraftFunc mocks the GetDraft method.
	GetDraftFunc func(ctx context.Context, draftID string) (*gmail.Draft, error)

	// GetDraftMetadataFunc mocks the GetDraftMetadata method.
	GetDraftMetadataFunc func(ctx context.Context, draftID string) (*gmail.Draft, error)

	// ListDraftsFunc mocks the ListDrafts method.
	ListDraftsFunc func(ctx context.Context, q string, pageToken string, maxResults int64) (*gmail.ListDraftsResponse, error)

	calls struct {
		GetDraft []struct {
			Ctx     context.Context
			DraftID string
		}
		GetDraftMetadata []struct {
			Ctx     context.Context
			DraftID string
		}
		ListDrafts []struct {
			Ctx        context.Context
			Q          string
			PageToken  string
			MaxResults int64
		}
	}
	lockGetDraft         sync.RWMutex
	lockGetDraftMetadata sync.RWMutex
	lockListDrafts       sync.RWMutex
}

// GetDraft calls GetDraftFunc.
func (mock *draftSvcMock) GetDraft(ctx context.Context, draftID string) (*gmail.Draft, error) {
	if mock.GetDraftFunc == nil {
		panic("draftSvcMock.GetDraftFunc: method is nil but draftSvc.GetDraft was just called")
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
func (mock *draftSvcMock) GetDraftCalls() []struct {
	Ctx     context.Context
	DraftID string
} {
	mock.lockGetDraft.RLock()
	defer mock.lockGetDraft.RUnlock()
	return mock.calls.GetDraft
}

// GetDraftMetadata calls GetDraftMetadataFunc.
func (mock *draftSvcMock) GetDraftMetadata(ctx context.Context, draftID string) (*gmail.Draft, error) {
	if mock.GetDraftMetadataFunc == nil {
		panic("draftSvcMock.GetDraftMetadataFunc: method is nil but draftSvc.GetDraftMetadata was just called")
	}
	callInfo := struct {
		Ctx     context.Context
		DraftID string
	}{
		Ctx:     ctx,
		DraftID: draftID,
	}
	mock.lockGetDraftMetadata.Lock()
	mock.calls.GetDraftMetadata = append(mock.calls.GetDraftMetadata, callInfo)
	mock.lockGetDraftMetadata.Unlock()
	return mock.GetDraftMetadataFunc(ctx, draftID)
}

// GetDraftMetadataCalls gets all the calls that were made to GetDraftMetadata.
func (mock *draftSvcMock) GetDraftMetadataCalls() []struct {
	Ctx     context.Context
	DraftID string
} {
	mock.lockGetDraftMetadata.RLock()
	defer mock.lockGetDraftMetadata.RUnlock()
	return mock.calls.GetDraftMetadata
}

// ListDrafts calls ListDraftsFunc.
func (mock *draftSvcMock) ListDrafts(ctx context.Context, q string, pageToken string, maxResults int64) (*gmail.ListDraftsResponse, error) {
	if mock.ListDraftsFunc == nil {
		panic("draftSvcMock.ListDraftsFunc: method is nil but draftSvc.ListDrafts was just called")
	}
	callInfo := struct {
		Ctx        context.Context
		Q          string
		PageToken  string
		MaxResults int64
	}{
		Ctx:        ctx,
		Q:          q,
		PageToken:  pageToken,
		MaxResults: maxResults,
	}
	mock.lockListDrafts.Lock()
	mock.calls.ListDrafts = append(mock.calls.ListDrafts, callInfo)
	mock.lockListDrafts.Unlock()
	return mock.ListDraftsFunc(ctx, q, pageToken, maxResults)
}

// ListDraftsCalls gets all the calls that were made to ListDrafts.
func (mock *draftSvcMock) ListDraftsCalls() []struct {
	Ctx        context.Context
	Q          string
	PageToken  string
	MaxResults int64
} {
	mock.lockListDrafts.RLock()
	defer mock.lockListDrafts.RUnlock()
	return mock.calls.ListDrafts
}
