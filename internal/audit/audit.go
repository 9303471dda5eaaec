// Package audit keeps the bounded, append-only record of dispatch attempts.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

// DefaultMaxEntries bounds the log when no explicit limit is configured.
const DefaultMaxEntries = 1000

// Store persists log entries. List returns entries oldest first and Trim
// drops the oldest entries until at most max remain.
type Store interface {
	Append(ctx context.Context, e model.LogEntry) error
	List(ctx context.Context) ([]model.LogEntry, error)
	Trim(ctx context.Context, max int) error
	Clear(ctx context.Context) error
}

type Log struct {
	store    Store
	max      int
	now      func() time.Time
	onRecord func(model.LogEntry)
}

func New(store Store, max int) *Log {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Log{store: store, max: max, now: time.Now}
}

// OnRecord registers fn to run after each entry is stored. Set it before the
// log is in use.
func (l *Log) OnRecord(fn func(model.LogEntry)) {
	l.onRecord = fn
}

func (l *Log) MaxEntries() int {
	return l.max
}

// Record appends one attempt. Only sent and failed attempts are recorded.
func (l *Log) Record(ctx context.Context, broadcastID string, it model.QueueItem) (model.LogEntry, error) {
	switch it.Status {
	case model.Sent, model.Failed:
	case model.Queued, model.Sending, model.Skipped, model.Cancelled:
		return model.LogEntry{}, fmt.Errorf("audit: %s is not a dispatch outcome", it.Status)
	default:
		return model.LogEntry{}, fmt.Errorf("audit: unknown status %q", it.Status)
	}

	e := model.LogEntry{
		ID:            uuid.NewString(),
		Timestamp:     l.now().UTC(),
		BroadcastID:   broadcastID,
		RecipientID:   it.RecipientID,
		RecipientName: it.RecipientName,
		Phone:         it.NormalizedPhone,
		Status:        it.Status,
		MessageHash:   HashMessage(it.Message),
		Error:         it.Error,
		Reference:     it.Reference,
	}

	if err := l.store.Append(ctx, e); err != nil {
		return model.LogEntry{}, fmt.Errorf("audit append: %w", err)
	}
	if err := l.store.Trim(ctx, l.max); err != nil {
		// The entry is stored; an oversized log is corrected on the next append.
		slog.Warn("audit trim failed", "err", err)
	}
	if l.onRecord != nil {
		l.onRecord(e)
	}
	return e, nil
}

// Entries returns the full log, oldest first.
func (l *Log) Entries(ctx context.Context) ([]model.LogEntry, error) {
	return l.store.List(ctx)
}

// Filter narrows the log; zero-valued fields match everything.
type Filter struct {
	Status      model.ItemStatus
	RecipientID string
	BroadcastID string
}

func (f Filter) match(e model.LogEntry) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.RecipientID != "" && e.RecipientID != f.RecipientID {
		return false
	}
	if f.BroadcastID != "" && e.BroadcastID != f.BroadcastID {
		return false
	}
	return true
}

func (l *Log) Query(ctx context.Context, f Filter) ([]model.LogEntry, error) {
	all, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.LogEntry, 0, len(all))
	for _, e := range all {
		if f.match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *Log) Clear(ctx context.Context) error {
	return l.store.Clear(ctx)
}

// HashMessage fingerprints message content without storing it.
func HashMessage(msg string) string {
	return strconv.FormatUint(xxhash.Sum64String(msg), 16)
}
