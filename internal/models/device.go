package models

import "time"

// Device is the push-registration state for this installation. DeviceID is
// generated once per profile and never rotated; channel subscriptions are
// mutable and pushed to the server on every change.
type Device struct {
	DeviceID     string    `json:"deviceId"`
	Platform     string    `json:"platform"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Channels     []string  `json:"channels"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Subscribed reports whether the device is subscribed to the channel.
func (d *Device) Subscribed(channel string) bool {
	for _, c := range d.Channels {
		if c == channel {
			return true
		}
	}
	return false
}
