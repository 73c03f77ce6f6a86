package validation

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hal9000y/greetguard/internal/config"
	"github.com/hal9000y/greetguard/internal/fault"
	"github.com/hal9000y/greetguard/internal/recipient"
	"github.com/hal9000y/greetguard/internal/resilience"
)

var (
	ErrDisposed = errors.New("orchestrator disposed")
	ErrDisabled = errors.New("validation disabled")
)

const DefaultDebounce = 300 * time.Millisecond

// Orchestrator owns the validation state of one compose session: the cached body and
// recipients, the pass generation, and the enabled flag. At most one pass runs at a time;
// concurrent callers share its outcome.
type Orchestrator struct {
	binding  Binding
	pipeline *Pipeline
	store    config.Store
	settings config.Settings
	policy   resilience.Policy
	breaker  *resilience.CircuitBreaker
	diag     *Diagnostics
	logger   *slog.Logger
	now      func() time.Time

	debounce  time.Duration
	debouncer *resilience.Debouncer
	group     singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	content        *string
	recipients     []recipient.Address
	hasRecipients  bool
	generation     uint64
	inProgress     bool
	lastValidation time.Time
	lastResults    []Result
	enabled        bool
	dirty          bool
	disposed       bool
	listeners      map[int]Listener
	nextListener   int
	detach         []func()
}

type Option func(*Orchestrator)

// WithSettingsStore makes every pass read its settings from store.
func WithSettingsStore(store config.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithSettings fixes the settings used when no store is configured.
func WithSettings(s config.Settings) Option {
	return func(o *Orchestrator) { o.settings = s }
}

func WithRetryPolicy(p resilience.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithCircuitBreaker shares a breaker, for instance across drafts of one mailbox.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(o *Orchestrator) { o.breaker = cb }
}

func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) { o.debounce = d }
}

func WithDiagnostics(d *Diagnostics) Option {
	return func(o *Orchestrator) { o.diag = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(binding Binding, pipeline *Pipeline, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		binding:   binding,
		pipeline:  pipeline,
		settings:  config.DefaultSettings(),
		policy:    resilience.DefaultPolicy(),
		logger:    slog.Default(),
		now:       time.Now,
		debounce:  DefaultDebounce,
		enabled:   true,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.breaker == nil {
		o.breaker = resilience.NewCircuitBreaker(3, 1, 30*time.Second)
	}
	if o.diag == nil {
		o.diag = NewDiagnostics(100, o.logger)
	}

	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.debouncer = resilience.NewDebouncer(o.debounce, o.revalidate)

	return o
}

// Attach subscribes to the binding's change notifications. Calling it again is a no-op.
func (o *Orchestrator) Attach() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.disposed || len(o.detach) > 0 {
		return
	}
	o.detach = append(o.detach,
		o.binding.OnContentChanged(o.HostChanged),
		o.binding.OnRecipientsChanged(o.HostChanged),
	)
}

// AddListener registers l; the returned func removes it.
func (o *Orchestrator) AddListener(l Listener) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextListener
	o.nextListener++
	o.listeners[id] = l

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

// HostChanged handles a change notification from the host: both cache slots are dropped and
// a revalidation is scheduled.
func (o *Orchestrator) HostChanged() {
	o.change(func() {
		o.content = nil
		o.recipients, o.hasRecipients = nil, false
	})
}

// OnContentChanged caches content and schedules a revalidation.
func (o *Orchestrator) OnContentChanged(content string) {
	o.change(func() { o.content = &content })
}

// OnRecipientsChanged caches recipients and schedules a revalidation.
func (o *Orchestrator) OnRecipientsChanged(recipients []recipient.Address) {
	recipients = slices.Clone(recipients)
	o.change(func() { o.recipients, o.hasRecipients = recipients, true })
}

func (o *Orchestrator) change(update func()) {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	update()
	o.generation++
	if !o.enabled {
		o.dirty = true
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.debouncer.Trigger()
}

// SetEnabled switches validation on or off. Re-enabling revalidates only when something
// changed while disabled.
func (o *Orchestrator) SetEnabled(enabled bool) {
	o.mu.Lock()
	if o.disposed || o.enabled == enabled {
		o.mu.Unlock()
		return
	}
	o.enabled = enabled

	if !enabled {
		if o.debouncer.Pending() {
			o.dirty = true
		}
		o.mu.Unlock()
		o.debouncer.Cancel()
		return
	}

	dirty := o.dirty
	o.dirty = false
	o.mu.Unlock()

	if dirty {
		o.debouncer.Trigger()
	}
}

func (o *Orchestrator) Enabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

func (o *Orchestrator) IsValidationInProgress() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inProgress && !o.disposed
}

// CachedContent returns the cached body, if any.
func (o *Orchestrator) CachedContent() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.content == nil {
		return "", false
	}
	return *o.content, true
}

// CachedRecipients returns a copy of the cached recipient list, if any.
func (o *Orchestrator) CachedRecipients() ([]recipient.Address, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.recipients), o.hasRecipients
}

// LastResults returns the results of the last delivered pass.
func (o *Orchestrator) LastResults() []Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.lastResults)
}

// LastValidation is the completion time of the last delivered pass.
func (o *Orchestrator) LastValidation() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastValidation
}

func (o *Orchestrator) Diagnostics() *Diagnostics {
	return o.diag
}

// ValidateCurrentEmail runs a pass, or waits for the one in flight and returns its results.
// Host failures do not surface here: they degrade the pass to no results and are reported
// to listeners and diagnostics.
func (o *Orchestrator) ValidateCurrentEmail(ctx context.Context) ([]Result, error) {
	out, err := o.validate(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(out.results), nil
}

type outcome struct {
	generation uint64
	results    []Result
}

func (o *Orchestrator) validate(ctx context.Context) (outcome, error) {
	o.mu.Lock()
	disposed, enabled := o.disposed, o.enabled
	o.mu.Unlock()
	if disposed {
		return outcome{}, ErrDisposed
	}
	if !enabled {
		return outcome{}, ErrDisabled
	}

	ch := o.group.DoChan("validate", func() (any, error) {
		return o.pass(), nil
	})

	select {
	case res := <-ch:
		o.mu.Lock()
		disposed := o.disposed
		o.mu.Unlock()
		if disposed {
			return outcome{}, ErrDisposed
		}
		return res.Val.(outcome), nil
	case <-ctx.Done():
		return outcome{}, ctx.Err()
	case <-o.ctx.Done():
		return outcome{}, ErrDisposed
	}
}

// revalidate is the debounced pass. It repeats until the pass saw the latest change, since a
// change may land while an older pass is still in flight.
func (o *Orchestrator) revalidate() {
	for {
		out, err := o.validate(o.ctx)
		if err != nil {
			return
		}

		o.mu.Lock()
		done := o.disposed || !o.enabled || out.generation == o.generation
		o.mu.Unlock()
		if done {
			return
		}
	}
}

func (o *Orchestrator) pass() outcome {
	o.mu.Lock()
	gen := o.generation
	var content *string
	if o.content != nil {
		c := *o.content
		content = &c
	}
	recipients, hasRecipients := slices.Clone(o.recipients), o.hasRecipients
	o.inProgress = true
	listeners := o.listenersLocked()
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inProgress = false
		o.mu.Unlock()
	}()

	for _, l := range listeners {
		l.OnValidationStarted()
	}

	ctx := o.ctx
	settings := o.loadSettings(ctx)

	body, addrs, err := o.fetch(ctx, content, recipients, hasRecipients)
	if err != nil {
		o.degrade(gen, err)
		return outcome{generation: gen}
	}

	results, err := o.pipeline.Evaluate(ctx, body, addrs, settings)
	if err != nil {
		o.degrade(gen, err)
		return outcome{generation: gen}
	}

	o.mu.Lock()
	current := !o.disposed && gen == o.generation
	if current {
		o.lastResults = results
		o.lastValidation = o.now()
		if o.content == nil {
			o.content = &body
		}
		if !o.hasRecipients {
			o.recipients, o.hasRecipients = addrs, true
		}
		listeners = o.listenersLocked()
	}
	o.mu.Unlock()

	if !current {
		o.logger.Debug("stale validation pass discarded", "generation", gen)
		return outcome{generation: gen, results: results}
	}

	for _, l := range listeners {
		l.OnValidationComplete(slices.Clone(results))
	}

	return outcome{generation: gen, results: results}
}

// degrade reports a failed pass. The pass itself completes with no results.
func (o *Orchestrator) degrade(gen uint64, err error) {
	o.mu.Lock()
	current := !o.disposed && gen == o.generation
	if current {
		o.lastResults = nil
		o.lastValidation = o.now()
	}
	listeners := o.listenersLocked()
	o.mu.Unlock()

	if !current {
		return
	}

	o.diag.Record(err)
	for _, l := range listeners {
		l.OnValidationError(err)
	}
}

// fetch returns the cached body and recipients, reading the missing ones from the binding.
func (o *Orchestrator) fetch(ctx context.Context, content *string, recipients []recipient.Address, hasRecipients bool) (string, []recipient.Address, error) {
	if content != nil && hasRecipients {
		return *content, recipients, nil
	}

	if !o.breaker.Allow() {
		return "", nil, fault.Wrap(fault.KindAPIUnavailable, "validation.fetch", resilience.ErrCircuitOpen)
	}

	body, addrs, err := o.fetchFromBinding(ctx, content, recipients, hasRecipients)
	switch {
	case err == nil:
		o.breaker.RecordSuccess()
	case ctx.Err() == nil && fault.Retryable(fault.KindOf(err)):
		o.breaker.RecordFailure()
	}

	return body, addrs, err
}

func (o *Orchestrator) fetchFromBinding(ctx context.Context, content *string, recipients []recipient.Address, hasRecipients bool) (string, []recipient.Address, error) {
	var body string
	if content != nil {
		body = *content
	} else {
		b, attempts, err := resilience.Retry(ctx, o.policy, o.binding.Body)
		if err != nil {
			return "", nil, o.classify("binding.Body", attempts, err)
		}
		body = b
	}

	if hasRecipients {
		return body, recipients, nil
	}

	addrs, attempts, err := resilience.Retry(ctx, o.policy, o.binding.Recipients)
	if err != nil {
		return "", nil, o.classify("binding.Recipients", attempts, err)
	}

	return body, addrs, nil
}

func (o *Orchestrator) classify(op string, attempts int, err error) error {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		kind := fault.KindInternal
		if errors.Is(err, context.DeadlineExceeded) {
			kind = fault.KindTimeout
		}
		fe = fault.Wrap(kind, op, err)
	}
	return fe.With("attempts", attempts)
}

func (o *Orchestrator) loadSettings(ctx context.Context) config.Settings {
	if o.store == nil {
		return o.settings
	}

	s, err := config.LoadOrReset(ctx, o.store, o.logger)
	if err != nil {
		o.diag.Record(err)
	}
	return s
}

func (o *Orchestrator) listenersLocked() []Listener {
	ids := make([]int, 0, len(o.listeners))
	for id := range o.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, o.listeners[id])
	}
	return out
}

// Dispose drops all cached state, cancels pending and in-flight work and detaches from the
// binding. The orchestrator cannot be used afterwards.
func (o *Orchestrator) Dispose() {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	o.disposed = true
	o.generation++
	o.content = nil
	o.recipients, o.hasRecipients = nil, false
	o.lastResults = nil
	o.listeners = make(map[int]Listener)
	detach := o.detach
	o.detach = nil
	o.mu.Unlock()

	o.debouncer.Stop()
	o.cancel()
	for _, fn := range detach {
		fn()
	}
}
