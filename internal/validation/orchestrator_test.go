package validation_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/greetguard/internal/config"
	"github.com/hal9000y/greetguard/internal/fault"
	"github.com/hal9000y/greetguard/internal/recipient"
	"github.com/hal9000y/greetguard/internal/resilience"
	"github.com/hal9000y/greetguard/internal/validation"
)

var fastRetry = resilience.Policy{MaxAttempts: 3, Backoff: resilience.FixedBackoff{Interval: time.Millisecond}}

// host is a mail client double whose change callbacks can be fired from tests.
type host struct {
	mu         sync.Mutex
	body       string
	recipients []recipient.Address
	content    []func()
	recips     []func()
	detached   atomic.Int32
}

func (h *host) set(body string, recipients ...recipient.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.body, h.recipients = body, recipients
}

func (h *host) fireContent() {
	h.mu.Lock()
	fns := append([]func(){}, h.content...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *host) binding() *bindingMock {
	return &bindingMock{
		BodyFunc: func(context.Context) (string, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.body, nil
		},
		RecipientsFunc: func(context.Context) ([]recipient.Address, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			return append([]recipient.Address{}, h.recipients...), nil
		},
		OnContentChangedFunc: func(fn func()) func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.content = append(h.content, fn)
			return func() { h.detached.Add(1) }
		},
		OnRecipientsChangedFunc: func(fn func()) func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.recips = append(h.recips, fn)
			return func() { h.detached.Add(1) }
		},
	}
}

// recorder counts listener notifications.
type recorder struct {
	mu       sync.Mutex
	started  int
	complete [][]validation.Result
	errs     []error
}

func (r *recorder) OnValidationStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *recorder) OnValidationComplete(results []validation.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = append(r.complete, results)
}

func (r *recorder) OnValidationError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *recorder) completions() [][]validation.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]validation.Result{}, r.complete...)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error{}, r.errs...)
}

func newOrchestrator(t *testing.T, b validation.Binding, opts ...validation.Option) (*validation.Orchestrator, *recorder) {
	t.Helper()
	o := validation.NewOrchestrator(b, newPipeline(t), append([]validation.Option{
		validation.WithRetryPolicy(fastRetry),
		validation.WithDebounce(30 * time.Millisecond),
	}, opts...)...)
	t.Cleanup(o.Dispose)

	rec := &recorder{}
	o.AddListener(rec)
	return o, rec
}

func TestValidateCurrentEmailMismatch(t *testing.T) {
	h := &host{}
	h.set("Hi Jane,\n\nplease see the attached draft.", johnDoe)
	o, rec := newOrchestrator(t, h.binding())

	got, err := o.ValidateCurrentEmail(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "jane", got[0].GreetingName)
	assert.False(t, got[0].IsValid)
	require.NotNil(t, got[0].SuggestedRecipient)
	assert.Contains(t, got[0].SuggestedRecipient.ExtractedNames, "john")

	assert.Equal(t, got, o.LastResults())
	assert.False(t, o.LastValidation().IsZero())
	assert.False(t, o.IsValidationInProgress())
	assert.Equal(t, 1, rec.starts())
	assert.Equal(t, [][]validation.Result{got}, rec.completions())

	content, ok := o.CachedContent()
	assert.True(t, ok)
	assert.Equal(t, "Hi Jane,\n\nplease see the attached draft.", content)
	recipients, ok := o.CachedRecipients()
	assert.True(t, ok)
	assert.Equal(t, []recipient.Address{johnDoe}, recipients)
}

func TestValidateCurrentEmailEmptyInputs(t *testing.T) {
	cases := map[string]struct {
		body       string
		recipients []recipient.Address
	}{
		"empty body":       {body: "  \n", recipients: []recipient.Address{johnDoe}},
		"no recipients":    {body: "Hi John,"},
		"no greeting":      {body: "See attached.", recipients: []recipient.Address{johnDoe}},
		"only stop words":  {body: "Hi All,", recipients: []recipient.Address{johnDoe}},
		"generic only bcc": {body: "Thanks!", recipients: []recipient.Address{support}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := &host{}
			h.set(tc.body, tc.recipients...)
			o, rec := newOrchestrator(t, h.binding())

			got, err := o.ValidateCurrentEmail(context.Background())
			require.NoError(t, err)
			assert.Empty(t, got)
			assert.Len(t, rec.completions(), 1)
			assert.Empty(t, rec.errors())
		})
	}
}

func TestConcurrentValidation(t *testing.T) {
	h := &host{}
	h.set("Hi John and Jane,", johnDoe, sarahLee)
	b := h.binding()
	o, _ := newOrchestrator(t, b, validation.WithDebounce(time.Hour))

	o.OnContentChanged("Hi John and Jane,")
	o.OnRecipientsChanged([]recipient.Address{johnDoe, sarahLee})

	const callers = 10
	results := make([][]validation.Result, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.ValidateCurrentEmail(context.Background())
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	require.Len(t, results[0], 2)
	for i := 1; i < callers; i++ {
		assert.Equal(t, results[0], results[i])
	}
	// the cached state is complete, the binding is never read
	assert.Empty(t, b.BodyCalls())
	assert.Empty(t, b.RecipientsCalls())
}

func TestDebouncedContentChanges(t *testing.T) {
	h := &host{}
	h.set("", johnDoe)
	o, rec := newOrchestrator(t, h.binding(), validation.WithDebounce(50*time.Millisecond))

	names := []string{"Anna", "Ben", "Cleo", "Dan", "Eve"}
	for i := range 20 {
		o.OnContentChanged(fmt.Sprintf("Hi %s,\nline %d", names[i%len(names)], i))
		time.Sleep(10 * time.Millisecond)
	}
	o.OnContentChanged("Hi John,\nfinal")
	time.Sleep(500 * time.Millisecond)

	passes := rec.completions()
	assert.NotEmpty(t, passes)
	assert.Less(t, len(passes), 10)

	last := passes[len(passes)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "john", last[0].GreetingName)
	assert.True(t, last[0].IsValid)
	assert.Equal(t, last, o.LastResults())
}

func TestHostChangeInvalidatesCache(t *testing.T) {
	h := &host{}
	h.set("Hi John,", johnDoe)
	b := h.binding()
	o, rec := newOrchestrator(t, b)
	o.Attach()
	o.Attach()

	require.Len(t, b.OnContentChangedCalls(), 1)
	require.Len(t, b.OnRecipientsChangedCalls(), 1)

	_, err := o.ValidateCurrentEmail(context.Background())
	require.NoError(t, err)
	_, ok := o.CachedContent()
	require.True(t, ok)

	h.set("Hi Sarah,", johnDoe)
	h.fireContent()

	_, ok = o.CachedContent()
	assert.False(t, ok)
	_, ok = o.CachedRecipients()
	assert.False(t, ok)

	require.Eventually(t, func() bool { return len(rec.completions()) == 2 }, time.Second, 5*time.Millisecond)
	last := o.LastResults()
	require.Len(t, last, 1)
	assert.Equal(t, "sarah", last[0].GreetingName)
	assert.False(t, last[0].IsValid)
	assert.Len(t, b.BodyCalls(), 2)
}

func TestDisabledCachesWithoutValidating(t *testing.T) {
	h := &host{}
	h.set("", johnDoe)
	o, rec := newOrchestrator(t, h.binding())

	o.SetEnabled(false)
	assert.False(t, o.Enabled())

	o.OnContentChanged("Hi John,")
	time.Sleep(100 * time.Millisecond)

	assert.Empty(t, rec.completions())
	content, ok := o.CachedContent()
	assert.True(t, ok)
	assert.Equal(t, "Hi John,", content)

	_, err := o.ValidateCurrentEmail(context.Background())
	assert.ErrorIs(t, err, validation.ErrDisabled)

	o.SetEnabled(true)
	require.Eventually(t, func() bool { return len(rec.completions()) == 1 }, time.Second, 5*time.Millisecond)

	// no change while disabled, no pass on re-enable
	o.SetEnabled(false)
	o.SetEnabled(true)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, rec.completions(), 1)
}

func TestDisablingCancelsPendingPass(t *testing.T) {
	h := &host{}
	h.set("", johnDoe)
	o, rec := newOrchestrator(t, h.binding(), validation.WithDebounce(50*time.Millisecond))

	o.OnContentChanged("Hi John,")
	o.SetEnabled(false)
	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, rec.completions())

	o.SetEnabled(true)
	require.Eventually(t, func() bool { return len(rec.completions()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispose(t *testing.T) {
	h := &host{}
	h.set("Hi John,", johnDoe)
	b := h.binding()
	o, rec := newOrchestrator(t, b)
	o.Attach()

	_, err := o.ValidateCurrentEmail(context.Background())
	require.NoError(t, err)

	o.OnContentChanged("Hi Sarah,")
	o.Dispose()
	o.Dispose()

	assert.Equal(t, int32(2), h.detached.Load())
	assert.False(t, o.IsValidationInProgress())
	_, ok := o.CachedContent()
	assert.False(t, ok)
	_, ok = o.CachedRecipients()
	assert.False(t, ok)
	assert.Empty(t, o.LastResults())

	_, err = o.ValidateCurrentEmail(context.Background())
	assert.ErrorIs(t, err, validation.ErrDisposed)

	// late host events and the cancelled debounce do nothing
	o.HostChanged()
	o.OnContentChanged("Hi Mike,")
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, rec.completions(), 1)
	assert.Len(t, b.BodyCalls(), 1)
}

func TestInFlightPassDiscardedOnDispose(t *testing.T) {
	release := make(chan struct{})
	b := &bindingMock{
		BodyFunc: func(ctx context.Context) (string, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return "Hi John,", nil
		},
		RecipientsFunc: func(context.Context) ([]recipient.Address, error) {
			return []recipient.Address{johnDoe}, nil
		},
	}
	o, rec := newOrchestrator(t, b)

	done := make(chan error, 1)
	go func() {
		_, err := o.ValidateCurrentEmail(context.Background())
		done <- err
	}()

	require.Eventually(t, o.IsValidationInProgress, time.Second, time.Millisecond)
	o.Dispose()
	close(release)

	assert.ErrorIs(t, <-done, validation.ErrDisposed)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.completions())
	assert.Empty(t, rec.errors())
	assert.False(t, o.IsValidationInProgress())
}

func TestStalePassNotDelivered(t *testing.T) {
	release := make(chan struct{})
	var bodyCalls atomic.Int32
	b := &bindingMock{
		BodyFunc: func(context.Context) (string, error) {
			if bodyCalls.Add(1) == 1 {
				<-release
			}
			return "Hi John,", nil
		},
		RecipientsFunc: func(context.Context) ([]recipient.Address, error) {
			return []recipient.Address{johnDoe}, nil
		},
	}
	o, rec := newOrchestrator(t, b)

	done := make(chan []validation.Result, 1)
	go func() {
		res, _ := o.ValidateCurrentEmail(context.Background())
		done <- res
	}()

	require.Eventually(t, o.IsValidationInProgress, time.Second, time.Millisecond)
	o.OnContentChanged("Hi Sarah,")
	close(release)

	stale := <-done
	require.Len(t, stale, 1)
	assert.Equal(t, "john", stale[0].GreetingName)

	require.Eventually(t, func() bool { return len(rec.completions()) > 0 }, time.Second, 5*time.Millisecond)
	for _, results := range rec.completions() {
		require.Len(t, results, 1)
		assert.Equal(t, "sarah", results[0].GreetingName)
	}
}

func TestTransientFailureRetried(t *testing.T) {
	var calls atomic.Int32
	b := &bindingMock{
		BodyFunc: func(context.Context) (string, error) {
			if calls.Add(1) == 1 {
				return "", fault.New(fault.KindNetwork, "body", "connection reset")
			}
			return "Hi John,", nil
		},
		RecipientsFunc: func(context.Context) ([]recipient.Address, error) {
			return []recipient.Address{johnDoe}, nil
		},
	}
	o, rec := newOrchestrator(t, b)

	got, err := o.ValidateCurrentEmail(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsValid)
	assert.Len(t, b.BodyCalls(), 2)
	assert.Empty(t, rec.errors())
	assert.Zero(t, o.Diagnostics().Len())
}

func TestFailuresDegradeToEmptyResults(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		calls int
	}{
		{name: "permission fails fast", err: fault.New(fault.KindPermission, "body", "access denied"), calls: 1},
		{name: "not found fails fast", err: fault.New(fault.KindNotFound, "body", "draft deleted"), calls: 1},
		{name: "network retried to the bound", err: fault.New(fault.KindNetwork, "body", "offline"), calls: 3},
		{name: "quota retried to the bound", err: fault.New(fault.KindQuota, "body", "rate limited"), calls: 3},
		{name: "unclassified retried as internal", err: fmt.Errorf("boom"), calls: 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &bindingMock{
				BodyFunc: func(context.Context) (string, error) { return "", tc.err },
			}
			o, rec := newOrchestrator(t, b)

			got, err := o.ValidateCurrentEmail(context.Background())
			require.NoError(t, err)
			assert.Empty(t, got)
			assert.Len(t, b.BodyCalls(), tc.calls)

			errs := rec.errors()
			require.Len(t, errs, 1)
			assert.Equal(t, fault.KindOf(tc.err), fault.KindOf(errs[0]))
			assert.Empty(t, rec.completions())

			entries := o.Diagnostics().Entries()
			require.Len(t, entries, 1)
			assert.Equal(t, fault.KindOf(tc.err), entries[0].Kind)
			assert.Equal(t, tc.calls, entries[0].Context["attempts"])
			assert.NotEmpty(t, entries[0].ID)
		})
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCircuitBreakerSkipsBinding(t *testing.T) {
	clk := &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	breaker := resilience.NewCircuitBreaker(2, 1, time.Minute, resilience.WithClock(clk.Now))

	var healthy atomic.Bool
	b := &bindingMock{
		BodyFunc: func(context.Context) (string, error) {
			if healthy.Load() {
				return "Hi John,", nil
			}
			return "", fault.New(fault.KindAPIUnavailable, "body", "host busy")
		},
		RecipientsFunc: func(context.Context) ([]recipient.Address, error) {
			return []recipient.Address{johnDoe}, nil
		},
	}
	o, rec := newOrchestrator(t, b,
		validation.WithCircuitBreaker(breaker),
		validation.WithRetryPolicy(resilience.Policy{MaxAttempts: 2, Backoff: resilience.FixedBackoff{Interval: time.Millisecond}}),
	)

	for range 2 {
		_, err := o.ValidateCurrentEmail(context.Background())
		require.NoError(t, err)
	}
	assert.Len(t, b.BodyCalls(), 4)
	assert.Equal(t, resilience.CircuitOpen, breaker.State())

	got, err := o.ValidateCurrentEmail(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Len(t, b.BodyCalls(), 4)

	errs := rec.errors()
	require.Len(t, errs, 3)
	assert.ErrorIs(t, errs[2], resilience.ErrCircuitOpen)
	assert.True(t, fault.Is(errs[2], fault.KindAPIUnavailable))

	healthy.Store(true)
	clk.Advance(time.Minute)

	got, err = o.ValidateCurrentEmail(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsValid)
	assert.Equal(t, resilience.CircuitClosed, breaker.State())
}

func TestSettingsFromStore(t *testing.T) {
	h := &host{}
	h.set("Hi John,", johnDoe)

	store := config.NewMemoryStore(map[string]any{config.KeyMinConfidence: 0.9})
	o, _ := newOrchestrator(t, h.binding(), validation.WithSettingsStore(store))

	got, err := o.ValidateCurrentEmail(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	store.Set(config.KeyMinConfidence, "nonsense")
	o.OnContentChanged("Hi John,")

	got, err = o.ValidateCurrentEmail(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsValid)

	entries := o.Diagnostics().Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, fault.KindConfiguration, entries[0].Kind)
	assert.Equal(t, config.DefaultSettings().MinConfidence, store.Saved()[config.KeyMinConfidence])
}

func TestListenerRemoval(t *testing.T) {
	h := &host{}
	h.set("Hi John,", johnDoe)
	o, rec := newOrchestrator(t, h.binding(), validation.WithDebounce(time.Hour))

	var started atomic.Int32
	remove := o.AddListener(validation.ListenerFuncs{Started: func() { started.Add(1) }})

	_, err := o.ValidateCurrentEmail(context.Background())
	require.NoError(t, err)
	remove()
	o.OnContentChanged("Hi Sarah,")
	_, err = o.ValidateCurrentEmail(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, 2, rec.starts())
}

func TestValidateHonoursCallerContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	b := &bindingMock{
		BodyFunc: func(context.Context) (string, error) {
			<-release
			return "", nil
		},
		RecipientsFunc: func(context.Context) ([]recipient.Address, error) { return nil, nil },
	}
	o, _ := newOrchestrator(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := o.ValidateCurrentEmail(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
