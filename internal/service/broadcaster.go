// Package service owns the broadcast lifecycle: building queues, running at
// most one dispatch session, and fanning progress out to observers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/audience"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/audit"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/dispatch"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/personalize"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/queue"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/repo"
)

var (
	ErrBroadcastActive = errors.New("a broadcast is already active")
	ErrNoBroadcast     = errors.New("no broadcast session")
	ErrInvalidInterval = errors.New("interval must be >= 0 seconds")
)

// Channel is a send channel that can also report its readiness.
type Channel interface {
	dispatch.Channel
	Name() string
	Check(ctx context.Context) error
}

// Request is one broadcast as submitted by a caller. Nil pacing fields fall
// back to the configured defaults.
type Request struct {
	Template        string   `json:"template"`
	Personalize     bool     `json:"personalize"`
	Audience        string   `json:"audience"`
	IntervalSeconds *float64 `json:"intervalSeconds,omitempty"`
	Jitter          *bool    `json:"jitter,omitempty"`
	DryRun          bool     `json:"dryRun"`
}

type Defaults struct {
	Interval    time.Duration
	Jitter      bool
	SendTimeout time.Duration
	DryRun      bool
}

type Deps struct {
	Recipients repo.RecipientRepository
	Builder    *queue.Builder
	Audit      *audit.Log
	Live       Channel
	DryRun     Channel
	Defaults   Defaults
}

// Preview is a built queue that has not been dispatched.
type Preview struct {
	Audience      audience.Audience `json:"audience"`
	Items         []model.QueueItem `json:"items"`
	Stats         model.Stats       `json:"stats"`
	UnknownTokens []string          `json:"unknownTokens,omitempty"`
}

type ChannelStatus struct {
	Channel string `json:"channel"`
	DryRun  bool   `json:"dryRun"`
	Ready   bool   `json:"ready"`
	Error   string `json:"error,omitempty"`
}

type Broadcaster struct {
	deps Deps

	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	current *dispatch.Session

	obsMu     sync.RWMutex
	observers map[int]func(dispatch.Event)
	nextObs   int
}

func NewBroadcaster(deps Deps) (*Broadcaster, error) {
	if deps.Recipients == nil {
		return nil, errors.New("recipient repository must not be nil")
	}
	if deps.Builder == nil {
		return nil, errors.New("queue builder must not be nil")
	}
	if deps.Live == nil || deps.DryRun == nil {
		return nil, errors.New("live and dry-run channels must not be nil")
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Broadcaster{
		deps:      deps,
		baseCtx:   ctx,
		stop:      stop,
		observers: map[int]func(dispatch.Event){},
	}, nil
}

// Subscribe registers fn for every event of every session. fn must not block.
func (b *Broadcaster) Subscribe(fn func(dispatch.Event)) (unsubscribe func()) {
	b.obsMu.Lock()
	id := b.nextObs
	b.nextObs++
	b.observers[id] = fn
	b.obsMu.Unlock()

	return func() {
		b.obsMu.Lock()
		delete(b.observers, id)
		b.obsMu.Unlock()
	}
}

// publish calls observers outside the lock so they may unsubscribe themselves.
func (b *Broadcaster) publish(ev dispatch.Event) {
	b.obsMu.RLock()
	fns := make([]func(dispatch.Event), 0, len(b.observers))
	for _, fn := range b.observers {
		fns = append(fns, fn)
	}
	b.obsMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (b *Broadcaster) Preview(ctx context.Context, req Request) (Preview, error) {
	aud, items, err := b.build(ctx, req)
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		Audience:      aud,
		Items:         items,
		Stats:         model.ComputeStats(items),
		UnknownTokens: personalize.UnknownTokens(req.Template),
	}, nil
}

func (b *Broadcaster) build(ctx context.Context, req Request) (audience.Audience, []model.QueueItem, error) {
	aud, err := audience.Parse(req.Audience)
	if err != nil {
		return "", nil, err
	}

	recipients, err := b.deps.Recipients.ListAll(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("load recipients: %w", err)
	}

	items, err := b.deps.Builder.Build(model.BroadcastConfig{
		Template:    req.Template,
		Personalize: req.Personalize,
		Audience:    string(aud),
	}, recipients)
	if err != nil {
		return "", nil, err
	}
	return aud, items, nil
}

// Start builds the queue and launches a new session. The session outlives
// ctx; it ends on completion, Cancel or Shutdown.
func (b *Broadcaster) Start(ctx context.Context, req Request) (dispatch.Snapshot, error) {
	opts, dryRun, err := b.options(req)
	if err != nil {
		return dispatch.Snapshot{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil && b.current.State().Active() {
		return dispatch.Snapshot{}, ErrBroadcastActive
	}

	_, items, err := b.build(ctx, req)
	if err != nil {
		return dispatch.Snapshot{}, err
	}

	ch := b.deps.Live
	if dryRun {
		ch = b.deps.DryRun
	}

	var rec dispatch.Recorder
	if b.deps.Audit != nil {
		rec = b.deps.Audit
	}

	s, err := dispatch.NewSession(uuid.NewString(), items, ch, rec, opts)
	if err != nil {
		return dispatch.Snapshot{}, err
	}
	if err := s.Start(b.baseCtx); err != nil {
		return dispatch.Snapshot{}, err
	}
	b.current = s

	slog.Info("broadcast session created",
		"broadcast_id", s.ID(),
		"channel", ch.Name(),
		"dry_run", dryRun,
		"items", len(items),
	)
	return s.Snapshot(), nil
}

func (b *Broadcaster) options(req Request) (dispatch.Options, bool, error) {
	d := b.deps.Defaults
	opts := dispatch.Options{
		Interval:    d.Interval,
		Jitter:      d.Jitter,
		SendTimeout: d.SendTimeout,
		OnEvent:     b.publish,
	}
	if req.IntervalSeconds != nil {
		if *req.IntervalSeconds < 0 {
			return dispatch.Options{}, false, ErrInvalidInterval
		}
		opts.Interval = time.Duration(*req.IntervalSeconds * float64(time.Second))
	}
	if req.Jitter != nil {
		opts.Jitter = *req.Jitter
	}
	return opts, req.DryRun || d.DryRun, nil
}

// Current returns the latest session snapshot, active or finished.
func (b *Broadcaster) Current() (dispatch.Snapshot, error) {
	s, err := b.session()
	if err != nil {
		return dispatch.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

func (b *Broadcaster) Pause() (dispatch.Snapshot, error) {
	return b.control((*dispatch.Session).Pause)
}

func (b *Broadcaster) Resume() (dispatch.Snapshot, error) {
	return b.control((*dispatch.Session).Resume)
}

func (b *Broadcaster) Cancel() (dispatch.Snapshot, error) {
	return b.control((*dispatch.Session).Cancel)
}

func (b *Broadcaster) control(op func(*dispatch.Session) error) (dispatch.Snapshot, error) {
	s, err := b.session()
	if err != nil {
		return dispatch.Snapshot{}, err
	}
	if err := op(s); err != nil {
		return dispatch.Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// Discard drops a finished session so the next one starts from IDLE.
func (b *Broadcaster) Discard() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return ErrNoBroadcast
	}
	if b.current.State().Active() {
		return ErrBroadcastActive
	}
	b.current = nil
	return nil
}

// Wait blocks until the current session's loop exits.
func (b *Broadcaster) Wait(ctx context.Context) error {
	s, err := b.session()
	if err != nil {
		return err
	}
	return s.Wait(ctx)
}

// Shutdown cancels any active session and waits for its loop to exit.
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	b.stop()

	b.mu.Lock()
	s := b.current
	b.mu.Unlock()
	if s == nil || s.State() == model.StateIdle {
		return nil
	}
	return s.Wait(ctx)
}

func (b *Broadcaster) session() (*dispatch.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return nil, ErrNoBroadcast
	}
	return b.current, nil
}

// ChannelStatus reports which channel new broadcasts use and whether it is ready.
func (b *Broadcaster) ChannelStatus(ctx context.Context) ChannelStatus {
	ch := b.deps.Live
	if b.deps.Defaults.DryRun {
		ch = b.deps.DryRun
	}

	st := ChannelStatus{Channel: ch.Name(), DryRun: b.deps.Defaults.DryRun, Ready: true}
	if err := ch.Check(ctx); err != nil {
		st.Ready = false
		st.Error = err.Error()
	}
	return st
}
