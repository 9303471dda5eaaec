// Package dispatch runs a broadcast queue through a send channel, one item at
// a time, with pacing and pause/resume/cancel control.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

var (
	ErrNoValidRecipients = errors.New("no valid recipients to send to")
	ErrSendTimeout       = errors.New("send timed out")
)

// Channel hands one message off to the messaging application. A nil error
// means the hand-off succeeded, not that the message was delivered. The
// returned reference identifies the hand-off and may be empty.
type Channel interface {
	Send(ctx context.Context, phone, message string) (reference string, err error)
}

// Recorder receives every finished dispatch attempt.
type Recorder interface {
	Record(ctx context.Context, broadcastID string, it model.QueueItem) (model.LogEntry, error)
}

type Options struct {
	Interval    time.Duration
	Jitter      bool
	SendTimeout time.Duration

	// Rand returns values in [0, 1); defaults to math/rand/v2.
	Rand func() float64
	Now  func() time.Time

	// OnEvent is called from the session goroutines and must not block.
	OnEvent func(Event)
}

// Snapshot is a copy of a session's state safe to hand to readers.
type Snapshot struct {
	ID         string            `json:"id"`
	State      model.State       `json:"state"`
	Items      []model.QueueItem `json:"items"`
	Stats      model.Stats       `json:"stats"`
	CreatedAt  time.Time         `json:"createdAt"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}

type Session struct {
	id       string
	channel  Channel
	recorder Recorder
	opts     Options

	mu         sync.Mutex
	state      model.State
	items      []model.QueueItem
	cursor     int
	wake       chan struct{}
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession takes ownership of a copy of items. recorder may be nil.
func NewSession(id string, items []model.QueueItem, ch Channel, recorder Recorder, opts Options) (*Session, error) {
	if id == "" {
		return nil, errors.New("session id must not be empty")
	}
	if ch == nil {
		return nil, errors.New("channel must not be nil")
	}
	if opts.Interval < 0 {
		return nil, errors.New("interval must be >= 0")
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	owned := make([]model.QueueItem, len(items))
	copy(owned, items)

	return &Session{
		id:        id,
		channel:   ch,
		recorder:  recorder,
		opts:      opts,
		state:     model.StateIdle,
		items:     owned,
		wake:      make(chan struct{}),
		createdAt: opts.Now().UTC(),
		done:      make(chan struct{}),
	}, nil
}

func (s *Session) ID() string {
	return s.id
}

// Start moves IDLE -> RUNNING and launches the dispatch loop. Cancelling ctx
// cancels the broadcast.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != model.StateIdle {
		from := s.state
		s.mu.Unlock()
		return &model.TransitionError{From: from, To: model.StateRunning}
	}
	if countQueued(s.items) == 0 {
		s.mu.Unlock()
		return ErrNoValidRecipients
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = model.StateRunning
	s.startedAt = s.opts.Now().UTC()
	ev := s.eventLocked(EventStarted, nil)
	s.mu.Unlock()

	slog.Info("broadcast started", "broadcast_id", s.id, "total", ev.Total,
		"interval", s.opts.Interval.String(), "jitter", s.opts.Jitter)
	s.emit(ev)

	go s.run(runCtx)
	return nil
}

// Pause lets the in-flight send finish and holds the loop before the next item.
// It fails once no QUEUED item remains, since the run is about to complete.
func (s *Session) Pause() error {
	return s.transition(model.StatePaused, EventPaused)
}

// Resume continues from the current cursor.
func (s *Session) Resume() error {
	return s.transition(model.StateRunning, EventResumed)
}

// Cancel marks every QUEUED item cancelled before returning. A send already
// in flight is not interrupted; no new send starts afterwards.
func (s *Session) Cancel() error {
	return s.transition(model.StateCancelled, EventCancelled)
}

func (s *Session) transition(to model.State, evType EventType) error {
	s.mu.Lock()
	from := s.state
	if !model.CanTransition(from, to) {
		s.mu.Unlock()
		return &model.TransitionError{From: from, To: to}
	}
	if to == model.StatePaused && s.findQueuedLocked() < 0 {
		s.mu.Unlock()
		return &model.TransitionError{From: from, To: to, Reason: "nothing left to send"}
	}

	s.state = to
	if to == model.StateCancelled {
		now := s.opts.Now().UTC()
		for i := range s.items {
			if s.items[i].Status == model.Queued {
				s.items[i].Status = model.Cancelled
				s.items[i].UpdatedAt = now
			}
		}
		s.finishedAt = now
	}
	s.signalLocked()
	ev := s.eventLocked(evType, nil)
	s.mu.Unlock()

	slog.Info("broadcast state changed", "broadcast_id", s.id, "from", from, "to", to)
	s.emit(ev)
	return nil
}

func (s *Session) State() model.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]model.QueueItem, len(s.items))
	copy(items, s.items)

	snap := Snapshot{
		ID:        s.id,
		State:     s.state,
		Items:     items,
		Stats:     model.ComputeStats(items),
		CreatedAt: s.createdAt,
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	if !s.finishedAt.IsZero() {
		t := s.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}

// Done is closed once the dispatch loop has exited. It never closes for a
// session that was not started.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the loop exits or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()

	first := true
	for {
		if !first && !s.pace(ctx) {
			break
		}
		first = false

		idx, it, ok := s.next(ctx)
		if !ok {
			break
		}
		s.dispatch(ctx, idx, it)
	}

	snap := s.Snapshot()
	slog.Info("broadcast finished",
		"broadcast_id", s.id,
		"state", snap.State,
		"sent", snap.Stats.Sent,
		"failed", snap.Stats.Failed,
		"skipped", snap.Stats.Skipped,
		"cancelled", snap.Stats.Cancelled,
	)
}

// next blocks while paused and claims the next QUEUED item as SENDING.
func (s *Session) next(ctx context.Context) (int, model.QueueItem, bool) {
	for {
		s.mu.Lock()
		switch s.state {
		case model.StatePaused:
			wake := s.wake
			s.mu.Unlock()
			select {
			case <-wake:
			case <-ctx.Done():
				s.abort(ctx)
				return -1, model.QueueItem{}, false
			}
			continue

		case model.StateRunning:
			if ctx.Err() != nil {
				s.mu.Unlock()
				s.abort(ctx)
				return -1, model.QueueItem{}, false
			}
			idx := s.findQueuedLocked()
			if idx < 0 {
				s.state = model.StateCompleted
				s.finishedAt = s.opts.Now().UTC()
				s.signalLocked()
				ev := s.eventLocked(EventCompleted, nil)
				s.mu.Unlock()
				s.emit(ev)
				return -1, model.QueueItem{}, false
			}

			it := &s.items[idx]
			it.Status = model.Sending
			it.Attempts++
			it.UpdatedAt = s.opts.Now().UTC()
			s.cursor = idx + 1
			claimed := *it
			s.mu.Unlock()
			return idx, claimed, true

		default:
			s.mu.Unlock()
			return -1, model.QueueItem{}, false
		}
	}
}

func (s *Session) findQueuedLocked() int {
	for i := s.cursor; i < len(s.items); i++ {
		if s.items[i].Status == model.Queued {
			return i
		}
	}
	return -1
}

func (s *Session) dispatch(ctx context.Context, idx int, it model.QueueItem) {
	start := s.opts.Now()
	ref, err := s.send(ctx, it)
	elapsed := s.opts.Now().Sub(start)

	s.mu.Lock()
	item := &s.items[idx]
	if err != nil {
		item.Status = model.Failed
		item.Error = err.Error()
	} else {
		item.Status = model.Sent
		item.Error = ""
		item.Reference = ref
	}
	item.UpdatedAt = s.opts.Now().UTC()
	outcome := *item
	ev := s.eventLocked(EventItem, &outcome)
	ev.Elapsed = elapsed
	s.mu.Unlock()

	if err != nil {
		slog.Warn("broadcast send failed", "broadcast_id", s.id, "recipient_id", it.RecipientID, "err", err)
	} else {
		slog.Info("broadcast send handed off", "broadcast_id", s.id, "recipient_id", it.RecipientID,
			"reference", ref, "duration_ms", elapsed.Milliseconds())
	}

	if s.recorder != nil {
		if _, rerr := s.recorder.Record(context.WithoutCancel(ctx), s.id, outcome); rerr != nil {
			slog.Error("audit record failed", "broadcast_id", s.id, "item_id", outcome.ID, "err", rerr)
		}
	}
	s.emit(ev)
}

// send calls the channel with its own deadline. Cancelling the broadcast does
// not reach an in-flight send; only the send timeout does.
func (s *Session) send(ctx context.Context, it model.QueueItem) (string, error) {
	sendCtx := context.WithoutCancel(ctx)
	if s.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(sendCtx, s.opts.SendTimeout)
		defer cancel()
	}

	type outcome struct {
		ref string
		err error
	}
	result := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("send channel panic recovered", "broadcast_id", s.id, "panic", r)
				result <- outcome{err: fmt.Errorf("channel panic: %v", r)}
			}
		}()
		ref, err := s.channel.Send(sendCtx, it.NormalizedPhone, it.Message)
		result <- outcome{ref: ref, err: err}
	}()

	select {
	case o := <-result:
		return o.ref, o.err
	case <-sendCtx.Done():
		return "", ErrSendTimeout
	}
}

// pace waits between items. It returns false when the loop must stop.
func (s *Session) pace(ctx context.Context) bool {
	d := Delay(s.opts.Interval, s.opts.Jitter, s.opts.Rand)
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		s.mu.Lock()
		state, wake := s.state, s.wake
		last := s.findQueuedLocked() < 0
		s.mu.Unlock()
		if state.Terminal() {
			return false
		}
		if last {
			return true
		}

		select {
		case <-timer.C:
			return true
		case <-wake:
		case <-ctx.Done():
			s.abort(ctx)
			return false
		}
	}
}

// abort cancels the broadcast after its context ended.
func (s *Session) abort(ctx context.Context) {
	if err := s.Cancel(); err == nil {
		slog.Warn("broadcast cancelled by context", "broadcast_id", s.id, "err", ctx.Err())
	}
}

// signalLocked wakes every goroutine waiting on a state change.
func (s *Session) signalLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}

func countQueued(items []model.QueueItem) int {
	n := 0
	for _, it := range items {
		if it.Status == model.Queued {
			n++
		}
	}
	return n
}
