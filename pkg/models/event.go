package models

import "time"

// LifecycleEventType type of lifecycle event emitted by the engine
type LifecycleEventType string

const (
	EventExpired        LifecycleEventType = "expired"
	EventDelivered      LifecycleEventType = "delivered"
	EventDeliveryFailed LifecycleEventType = "delivery_failed"
)

// LifecycleEvent is emitted to notification sinks. It never carries code material.
type LifecycleEvent struct {
	ID        string             `json:"id"`
	Type      LifecycleEventType `json:"type"`
	RequestID string             `json:"requestId"`
	Source    string             `json:"source,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	At        time.Time          `json:"at"`
}

// Cursor is a position in a capture source's change stream
type Cursor struct {
	Source    string `db:"source"`
	HistoryID string `db:"history_id"`
}

// IsZero reports whether the cursor has not been set
func (c Cursor) IsZero() bool {
	return c.HistoryID == ""
}
