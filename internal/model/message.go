package model

import (
	"fmt"
	"time"
)

// ItemStatus is the lifecycle status of a single queued message.
type ItemStatus string

const (
	Queued    ItemStatus = "queued"
	Sending   ItemStatus = "sending"
	Sent      ItemStatus = "sent"
	Failed    ItemStatus = "failed"
	Skipped   ItemStatus = "skipped"
	Cancelled ItemStatus = "cancelled"
)

// ItemStatuses lists every status in lifecycle order.
var ItemStatuses = []ItemStatus{Queued, Sending, Sent, Failed, Skipped, Cancelled}

func (s ItemStatus) Valid() bool {
	switch s {
	case Queued, Sending, Sent, Failed, Skipped, Cancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition can happen from s.
func (s ItemStatus) Terminal() bool {
	switch s {
	case Sent, Failed, Skipped, Cancelled:
		return true
	case Queued, Sending:
		return false
	}
	panic(fmt.Sprintf("model: unknown item status %q", string(s)))
}

func ParseItemStatus(raw string) (ItemStatus, error) {
	s := ItemStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown item status %q", raw)
	}
	return s, nil
}

// QueueItem is one planned send of a broadcast.
type QueueItem struct {
	ID              string     `json:"id"`
	RecipientID     string     `json:"recipientId"`
	RecipientName   string     `json:"recipientName"`
	Phone           string     `json:"phone"`
	NormalizedPhone string     `json:"normalizedPhone"`
	Message         string     `json:"message"`
	Status          ItemStatus `json:"status"`
	Attempts        int        `json:"attempts"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	Error           string     `json:"error,omitempty"`
	// Reference is the channel's id for a handed-off message, when it has one.
	Reference string `json:"reference,omitempty"`
}
