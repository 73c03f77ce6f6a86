// Package gservice adapts the Gmail API to the validation host binding.
package gservice

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const gmailUserID = "me"

type tokenSource interface {
	OAuthToken() (*oauth2.Token, error)
}

type Option func(*GMail)

// WithClientOptions appends options to every gmail.NewService call, e.g. an endpoint in tests.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(m *GMail) { m.clientOpts = append(m.clientOpts, opts...) }
}

func NewGmail(cfg *oauth2.Config, tok tokenSource, opts ...Option) *GMail {
	m := &GMail{
		cfg: cfg,
		tok: tok,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GMail reads drafts of the authorized mailbox. Errors are *fault.Error.
type GMail struct {
	cfg        *oauth2.Config
	tok        tokenSource
	clientOpts []option.ClientOption
}

func (m *GMail) ListDrafts(ctx context.Context, q, pageToken string, maxResults int64) (*gmail.ListDraftsResponse, error) {
	svc, err := m.newSvc(ctx)
	if err != nil {
		return nil, Classify("gmail.newSvc", err)
	}

	call := svc.Users.Drafts.List(gmailUserID).
		Q(q).
		PageToken(pageToken).
		MaxResults(maxResults).
		Context(ctx)

	result, err := call.Do()
	if err != nil {
		return nil, Classify("drafts.List", err)
	}

	return result, nil
}

// GetDraft returns the draft with its full message payload.
func (m *GMail) GetDraft(ctx context.Context, draftID string) (*gmail.Draft, error) {
	return m.getDraft(ctx, draftID, "full")
}

// GetDraftMetadata returns the draft with headers and snippet only.
func (m *GMail) GetDraftMetadata(ctx context.Context, draftID string) (*gmail.Draft, error) {
	return m.getDraft(ctx, draftID, "metadata")
}

func (m *GMail) getDraft(ctx context.Context, draftID, format string) (*gmail.Draft, error) {
	svc, err := m.newSvc(ctx)
	if err != nil {
		return nil, Classify("gmail.newSvc", err)
	}

	draft, err := svc.Users.Drafts.Get(gmailUserID, draftID).
		Format(format).
		Context(ctx).
		Do()
	if err != nil {
		return nil, Classify("drafts.Get", err).With("draft_id", draftID)
	}

	return draft, nil
}

func (m *GMail) newSvc(ctx context.Context) (*gmail.Service, error) {
	t, err := m.tok.OAuthToken()
	if err != nil {
		return nil, fmt.Errorf("tok.OAuthToken failed: %w", err)
	}

	clt := m.cfg.Client(ctx, t)

	opts := append([]option.ClientOption{option.WithHTTPClient(clt)}, m.clientOpts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail.NewService failed: %w", err)
	}

	return svc, nil
}
