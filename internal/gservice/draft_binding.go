package gservice

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/greetguard/internal/fault"
	"github.com/hal9000y/greetguard/internal/recipient"
	"github.com/hal9000y/greetguard/internal/validation"
)

const DefaultPollInterval = 2 * time.Second

var _ validation.Binding = (*DraftBinding)(nil)

type draftGetter interface {
	GetDraft(ctx context.Context, draftID string) (*gmail.Draft, error)
}

type BindingOption func(*DraftBinding)

// WithPollInterval sets how often registered watchers re-read the draft.
func WithPollInterval(d time.Duration) BindingOption {
	return func(b *DraftBinding) { b.interval = d }
}

func WithBindingLogger(l *slog.Logger) BindingOption {
	return func(b *DraftBinding) { b.logger = l }
}

// DraftBinding exposes one Gmail draft as a validation host. Change notifications come from
// polling the draft while at least one callback is registered.
type DraftBinding struct {
	svc      draftGetter
	draftID  string
	interval time.Duration
	logger   *slog.Logger
	group    singleflight.Group

	mu       sync.Mutex
	content  map[int]func()
	recips   map[int]func()
	nextID   int
	stopPoll context.CancelFunc
	polling  sync.WaitGroup
}

func NewDraftBinding(svc draftGetter, draftID string, opts ...BindingOption) *DraftBinding {
	b := &DraftBinding{
		svc:      svc,
		draftID:  draftID,
		interval: DefaultPollInterval,
		logger:   slog.Default(),
		content:  make(map[int]func()),
		recips:   make(map[int]func()),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *DraftBinding) DraftID() string {
	return b.draftID
}

type draftSnapshot struct {
	body       string
	recipients []recipient.Address
}

func (s draftSnapshot) sameRecipients(o draftSnapshot) bool {
	return slices.Equal(s.recipients, o.recipients)
}

// Body returns the draft body, text/plain when the draft has it.
func (b *DraftBinding) Body(ctx context.Context) (string, error) {
	snap, err := b.load(ctx)
	if err != nil {
		return "", err
	}
	return snap.body, nil
}

// Recipients returns To, Cc and Bcc recipients in that order.
func (b *DraftBinding) Recipients(ctx context.Context) ([]recipient.Address, error) {
	snap, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(snap.recipients), nil
}

// load reads the draft; concurrent callers share one request.
func (b *DraftBinding) load(ctx context.Context) (draftSnapshot, error) {
	ch := b.group.DoChan("draft", func() (any, error) {
		draft, err := b.svc.GetDraft(ctx, b.draftID)
		if err != nil {
			return draftSnapshot{}, err
		}
		if draft == nil || draft.Message == nil {
			return draftSnapshot{}, fault.New(fault.KindNotFound, "gservice.DraftBinding", "draft has no message").
				With("draft_id", b.draftID)
		}
		return draftSnapshot{body: Body(draft.Message), recipients: Recipients(draft.Message)}, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return draftSnapshot{}, res.Err
		}
		return res.Val.(draftSnapshot), nil
	case <-ctx.Done():
		return draftSnapshot{}, ctx.Err()
	}
}

func (b *DraftBinding) OnContentChanged(fn func()) func() {
	return b.register(b.content, fn)
}

func (b *DraftBinding) OnRecipientsChanged(fn func()) func() {
	return b.register(b.recips, fn)
}

func (b *DraftBinding) register(set map[int]func(), fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	set[id] = fn

	if b.stopPoll == nil {
		ctx, cancel := context.WithCancel(context.Background())
		b.stopPoll = cancel
		b.polling.Add(1)
		go b.poll(ctx)
	}

	var once sync.Once
	return func() {
		once.Do(func() { b.unregister(set, id) })
	}
}

func (b *DraftBinding) unregister(set map[int]func(), id int) {
	b.mu.Lock()
	delete(set, id)
	var stop context.CancelFunc
	if len(b.content) == 0 && len(b.recips) == 0 && b.stopPoll != nil {
		stop = b.stopPoll
		b.stopPoll = nil
	}
	b.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Close stops polling and drops all callbacks.
func (b *DraftBinding) Close() {
	b.mu.Lock()
	clear(b.content)
	clear(b.recips)
	stop := b.stopPoll
	b.stopPoll = nil
	b.mu.Unlock()

	if stop != nil {
		stop()
	}
	b.polling.Wait()
}

func (b *DraftBinding) poll(ctx context.Context) {
	defer b.polling.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	var (
		last draftSnapshot
		seen bool
	)

	for {
		snap, err := b.load(ctx)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				b.logger.Warn("draft poll failed", "draft_id", b.draftID, "error", err, "kind", fault.KindOf(err))
			}
		case !seen:
			last, seen = snap, true
		default:
			contentChanged := snap.body != last.body
			recipientsChanged := !snap.sameRecipients(last)
			last = snap
			b.notify(contentChanged, recipientsChanged)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *DraftBinding) notify(content, recipients bool) {
	if !content && !recipients {
		return
	}

	b.mu.Lock()
	var fns []func()
	if content {
		fns = append(fns, callbacks(b.content)...)
	}
	if recipients {
		fns = append(fns, callbacks(b.recips)...)
	}
	b.mu.Unlock()

	b.logger.Debug("draft changed", "draft_id", b.draftID, "content", content, "recipients", recipients)
	for _, fn := range fns {
		fn()
	}
}

func callbacks(set map[int]func()) []func() {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]func(), 0, len(ids))
	for _, id := range ids {
		out = append(out, set[id])
	}
	return out
}
