package dispatch

import (
	"log/slog"
	"time"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

type EventType string

const (
	EventStarted   EventType = "started"
	EventItem      EventType = "item"
	EventPaused    EventType = "paused"
	EventResumed   EventType = "resumed"
	EventCompleted EventType = "completed"
	EventCancelled EventType = "cancelled"
)

// Event reports progress. Total counts the items that will be dispatched,
// Processed those that reached SENT or FAILED.
type Event struct {
	Type        EventType        `json:"type"`
	BroadcastID string           `json:"broadcastId"`
	State       model.State      `json:"state"`
	Item        *model.QueueItem `json:"item,omitempty"`
	Elapsed     time.Duration    `json:"-"`
	Processed   int              `json:"processed"`
	Total       int              `json:"total"`
	Stats       model.Stats      `json:"stats"`
	At          time.Time        `json:"at"`
}

func (s *Session) eventLocked(t EventType, it *model.QueueItem) Event {
	st := model.ComputeStats(s.items)
	return Event{
		Type:        t,
		BroadcastID: s.id,
		State:       s.state,
		Item:        it,
		Processed:   st.Processed,
		Total:       st.Total - st.Skipped,
		Stats:       st,
		At:          s.opts.Now().UTC(),
	}
}

func (s *Session) emit(ev Event) {
	if s.opts.OnEvent == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("broadcast event observer panic recovered", "broadcast_id", s.id, "panic", r)
		}
	}()
	s.opts.OnEvent(ev)
}
