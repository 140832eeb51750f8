package models

import "time"

// NotificationRecord is one delivered push event. CreatedAt is capture
// time, not necessarily delivery time. The Read flag is monotonic: once
// true it never reverts.
type NotificationRecord struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	Read      bool           `json:"read"`
}
