package model

import "time"

// LogEntry is one immutable audit record of a dispatch attempt.
type LogEntry struct {
	ID            string     `json:"id"`
	Timestamp     time.Time  `json:"timestamp"`
	BroadcastID   string     `json:"broadcastId"`
	RecipientID   string     `json:"recipientId"`
	RecipientName string     `json:"recipientName"`
	Phone         string     `json:"phone"`
	Status        ItemStatus `json:"status"`
	MessageHash   string     `json:"messageHash"`
	Error         string     `json:"error,omitempty"`
	Reference     string     `json:"reference,omitempty"`
}
