package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

type fakeChannel struct {
	mu    sync.Mutex
	calls []string

	// fail maps a phone to the error returned for it.
	fail map[string]error
	// gate, when set, makes every send wait for a release.
	gate    chan struct{}
	entered chan string
	onSend  func(phone string)
	panicOn string
	hang    bool
}

func (f *fakeChannel) Send(ctx context.Context, phone, message string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, phone)
	f.mu.Unlock()

	if f.onSend != nil {
		f.onSend(phone)
	}
	if f.entered != nil {
		f.entered <- phone
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if phone == f.panicOn {
		panic("boom")
	}
	if err := f.fail[phone]; err != nil {
		return "", err
	}
	return "ref-" + phone, nil
}

func (f *fakeChannel) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []model.QueueItem
}

func (r *fakeRecorder) Record(_ context.Context, broadcastID string, it model.QueueItem) (model.LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, it)
	return model.LogEntry{BroadcastID: broadcastID, RecipientID: it.RecipientID, Status: it.Status}, nil
}

func (r *fakeRecorder) Items() []model.QueueItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.QueueItem, len(r.entries))
	copy(out, r.entries)
	return out
}

func queued(n int) []model.QueueItem {
	items := make([]model.QueueItem, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, model.QueueItem{
			ID:              fmt.Sprintf("r%d-1", i),
			RecipientID:     fmt.Sprintf("r%d", i),
			NormalizedPhone: fmt.Sprintf("+9198765432%02d", i),
			Message:         "hello",
			Status:          model.Queued,
		})
	}
	return items
}

func newSession(t *testing.T, items []model.QueueItem, ch Channel, rec Recorder, opts Options) *Session {
	t.Helper()
	s, err := NewSession("b-1", items, ch, rec, opts)
	if err != nil {
		t.Fatalf("NewSession returned error: %v", err)
	}
	return s
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("session did not finish: %v", err)
	}
}

func waitForStatus(t *testing.T, s *Session, idx int, want model.ItemStatus) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		if s.Snapshot().Items[idx].Status == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("item %d never reached %s (got %s)", idx, want, s.Snapshot().Items[idx].Status)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNewSession_InvalidArgs(t *testing.T) {
	t.Parallel()

	if _, err := NewSession("", nil, &fakeChannel{}, nil, Options{}); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if _, err := NewSession("b", nil, nil, nil, Options{}); err == nil {
		t.Fatalf("expected error for nil channel")
	}
	if _, err := NewSession("b", nil, &fakeChannel{}, nil, Options{Interval: -time.Second}); err == nil {
		t.Fatalf("expected error for negative interval")
	}
}

func TestSession_CompletesAndSkipsInvalid(t *testing.T) {
	t.Parallel()

	items := queued(3)
	items = append(items, model.QueueItem{ID: "bad-1", RecipientID: "bad", Status: model.Skipped, Error: "Phone number too short"})

	ch := &fakeChannel{}
	rec := &fakeRecorder{}

	var (
		evMu   sync.Mutex
		events []Event
	)
	s := newSession(t, items, ch, rec, Options{OnEvent: func(ev Event) {
		evMu.Lock()
		events = append(events, ev)
		evMu.Unlock()
	}})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	waitDone(t, s)

	snap := s.Snapshot()
	if snap.State != model.StateCompleted {
		t.Fatalf("expected completed, got %s", snap.State)
	}
	if snap.Stats.Sent != 3 || snap.Stats.Failed != 0 || snap.Stats.Skipped != 1 || snap.Stats.Remaining != 0 {
		t.Fatalf("unexpected stats: %+v", snap.Stats)
	}
	if snap.FinishedAt == nil || snap.StartedAt == nil {
		t.Fatalf("expected start and finish times")
	}

	calls := ch.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 sends, got %v", calls)
	}
	for i, phone := range calls {
		if phone != items[i].NormalizedPhone {
			t.Fatalf("send %d: expected %s, got %s", i, items[i].NormalizedPhone, phone)
		}
	}

	got := rec.Items()
	if len(got) != 3 {
		t.Fatalf("expected 3 audit records, got %d", len(got))
	}
	for i, it := range got {
		if it.Reference != "ref-"+items[i].NormalizedPhone {
			t.Fatalf("record %d: expected channel reference, got %q", i, it.Reference)
		}
	}
	for _, it := range snap.Items[:3] {
		if it.Attempts != 1 {
			t.Fatalf("expected one attempt for %s, got %d", it.ID, it.Attempts)
		}
	}

	evMu.Lock()
	defer evMu.Unlock()
	if len(events) != 5 {
		t.Fatalf("expected started, 3 item and completed events, got %d", len(events))
	}
	if events[0].Type != EventStarted || events[0].Total != 3 {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	last := events[len(events)-1]
	if last.Type != EventCompleted || last.Processed != 3 || last.Total != 3 {
		t.Fatalf("unexpected last event: %+v", last)
	}
}

func TestSession_FailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	items := queued(3)
	ch := &fakeChannel{fail: map[string]error{items[1].NormalizedPhone: errors.New("handler missing")}}
	rec := &fakeRecorder{}
	s := newSession(t, items, ch, rec, Options{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	waitDone(t, s)

	snap := s.Snapshot()
	if snap.Items[1].Status != model.Failed || snap.Items[1].Error != "handler missing" {
		t.Fatalf("unexpected failed item: %+v", snap.Items[1])
	}
	if snap.Stats.Sent != 2 || snap.Stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", snap.Stats)
	}

	recorded := rec.Items()
	if len(recorded) != 3 || recorded[1].Status != model.Failed {
		t.Fatalf("expected failed audit record, got %+v", recorded)
	}
	if recorded[1].Reference != "" {
		t.Fatalf("failed send must not carry a reference, got %q", recorded[1].Reference)
	}
}

func TestSession_PanicInChannelIsFailure(t *testing.T) {
	t.Parallel()

	items := queued(2)
	ch := &fakeChannel{panicOn: items[0].NormalizedPhone}
	s := newSession(t, items, ch, nil, Options{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	waitDone(t, s)

	snap := s.Snapshot()
	if snap.Items[0].Status != model.Failed || snap.Items[0].Error != "channel panic: boom" {
		t.Fatalf("unexpected item after panic: %+v", snap.Items[0])
	}
	if snap.Items[1].Status != model.Sent {
		t.Fatalf("expected loop to continue after panic, got %s", snap.Items[1].Status)
	}
}

func TestSession_SendTimeout(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{hang: true}
	s := newSession(t, queued(1), ch, nil, Options{SendTimeout: 20 * time.Millisecond})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	waitDone(t, s)

	it := s.Snapshot().Items[0]
	if it.Status != model.Failed || it.Error != ErrSendTimeout.Error() {
		t.Fatalf("expected timeout failure, got %+v", it)
	}
}

func TestSession_StartRequiresQueuedItems(t *testing.T) {
	t.Parallel()

	items := []model.QueueItem{{ID: "x", Status: model.Skipped}}
	s := newSession(t, items, &fakeChannel{}, nil, Options{})

	if err := s.Start(context.Background()); !errors.Is(err, ErrNoValidRecipients) {
		t.Fatalf("expected ErrNoValidRecipients, got %v", err)
	}
	if s.State() != model.StateIdle {
		t.Fatalf("expected idle, got %s", s.State())
	}
}

func TestSession_IllegalTransitions(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	entered := make(chan string, 1)
	s := newSession(t, queued(1), &fakeChannel{gate: gate, entered: entered}, nil, Options{})

	var te *model.TransitionError
	if err := s.Pause(); !errors.As(err, &te) || te.From != model.StateIdle {
		t.Fatalf("expected transition error from idle, got %v", err)
	}
	if err := s.Cancel(); !errors.As(err, &te) {
		t.Fatalf("expected cancel before start to fail, got %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-entered

	if err := s.Start(context.Background()); !errors.As(err, &te) || te.From != model.StateRunning {
		t.Fatalf("expected second start to fail, got %v", err)
	}
	if err := s.Resume(); !errors.As(err, &te) {
		t.Fatalf("expected resume while running to fail, got %v", err)
	}

	close(gate)
	waitDone(t, s)

	if err := s.Cancel(); !errors.As(err, &te) || te.From != model.StateCompleted {
		t.Fatalf("expected cancel after completion to fail, got %v", err)
	}
}

func TestSession_PauseThenCancel(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	entered := make(chan string, 1)
	ch := &fakeChannel{gate: gate, entered: entered}
	rec := &fakeRecorder{}
	s := newSession(t, queued(5), ch, rec, Options{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	<-entered
	gate <- struct{}{}
	<-entered

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}
	gate <- struct{}{}
	waitForStatus(t, s, 1, model.Sent)

	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	snap := s.Snapshot()
	for _, it := range snap.Items {
		if it.Status == model.Queued {
			t.Fatalf("item %s still queued after cancel", it.ID)
		}
	}
	if snap.Stats.Processed != 2 || snap.Stats.Cancelled != 3 {
		t.Fatalf("unexpected stats after cancel: %+v", snap.Stats)
	}

	waitDone(t, s)
	if n := len(ch.Calls()); n != 2 {
		t.Fatalf("expected no sends after cancel, got %d", n)
	}
	if n := len(rec.Items()); n != 2 {
		t.Fatalf("expected 2 audit records, got %d", n)
	}
	if s.State() != model.StateCancelled {
		t.Fatalf("expected cancelled, got %s", s.State())
	}
}

func TestSession_PauseRefusedDuringLastSend(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	entered := make(chan string, 1)
	s := newSession(t, queued(1), &fakeChannel{gate: gate, entered: entered}, nil, Options{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-entered

	var te *model.TransitionError
	if err := s.Pause(); !errors.As(err, &te) || te.From != model.StateRunning || te.To != model.StatePaused {
		t.Fatalf("expected pause during the last send to fail, got %v", err)
	}
	if s.State() != model.StateRunning {
		t.Fatalf("expected running, got %s", s.State())
	}

	close(gate)
	waitDone(t, s)

	snap := s.Snapshot()
	if snap.State != model.StateCompleted || snap.Stats.Sent != 1 {
		t.Fatalf("expected completed with one sent, got state=%s stats=%+v", snap.State, snap.Stats)
	}
}

func TestSession_PauseResumeNoDuplicates(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	entered := make(chan string, 1)
	ch := &fakeChannel{gate: gate, entered: entered}
	items := queued(4)
	s := newSession(t, items, ch, nil, Options{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	<-entered
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause returned error: %v", err)
	}
	gate <- struct{}{}
	waitForStatus(t, s, 0, model.Sent)

	// Paused: nothing new starts.
	select {
	case phone := <-entered:
		t.Fatalf("send to %s started while paused", phone)
	case <-time.After(30 * time.Millisecond):
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume returned error: %v", err)
	}
	for i := 1; i < 4; i++ {
		<-entered
		gate <- struct{}{}
	}
	waitDone(t, s)

	calls := ch.Calls()
	if len(calls) != 4 {
		t.Fatalf("expected 4 sends, got %v", calls)
	}
	seen := map[string]bool{}
	for i, phone := range calls {
		if seen[phone] {
			t.Fatalf("duplicate send to %s", phone)
		}
		seen[phone] = true
		if phone != items[i].NormalizedPhone {
			t.Fatalf("send %d out of order: %s", i, phone)
		}
	}
	if s.State() != model.StateCompleted {
		t.Fatalf("expected completed, got %s", s.State())
	}
}

func TestSession_AtMostOneSending(t *testing.T) {
	t.Parallel()

	var s *Session
	var (
		mu         sync.Mutex
		violations int
	)
	ch := &fakeChannel{onSend: func(string) {
		n := 0
		for _, it := range s.Snapshot().Items {
			if it.Status == model.Sending {
				n++
			}
		}
		if n != 1 {
			mu.Lock()
			violations++
			mu.Unlock()
		}
	}}
	s = newSession(t, queued(6), ch, nil, Options{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	waitDone(t, s)

	mu.Lock()
	defer mu.Unlock()
	if violations != 0 {
		t.Fatalf("observed %d sends without exactly one SENDING item", violations)
	}
}

func TestSession_CancelInterruptsPacing(t *testing.T) {
	t.Parallel()

	entered := make(chan string, 1)
	ch := &fakeChannel{entered: entered}
	s := newSession(t, queued(3), ch, nil, Options{Interval: time.Hour})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-entered
	waitForStatus(t, s, 0, model.Sent)

	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	waitDone(t, s)

	if n := len(ch.Calls()); n != 1 {
		t.Fatalf("expected 1 send, got %d", n)
	}
}

func TestSession_ContextCancelCancelsBroadcast(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	entered := make(chan string, 1)
	s := newSession(t, queued(3), &fakeChannel{entered: entered}, nil, Options{Interval: time.Hour})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-entered
	cancel()
	waitDone(t, s)

	snap := s.Snapshot()
	if snap.State != model.StateCancelled {
		t.Fatalf("expected cancelled, got %s", snap.State)
	}
	if snap.Stats.Cancelled != 2 {
		t.Fatalf("expected 2 cancelled items, got %+v", snap.Stats)
	}
}

func TestSession_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	items := queued(1)
	s := newSession(t, items, &fakeChannel{}, nil, Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	waitDone(t, s)

	if items[0].Status != model.Queued {
		t.Fatalf("caller slice was mutated: %s", items[0].Status)
	}
}
