// Package models defines the records persisted by the stayline client:
// queued uploads, notification log entries, cache entries and the device
// registration.
package models

import "time"

// UploadPhase says how far the direct upload attempt got before it failed.
// Replay pattern-matches on this closed set of states instead of
// null-checking optional fields.
type UploadPhase string

const (
	// PhaseNotStarted means the grant request itself failed; replay runs
	// the full three-step sequence from RequestPayload.
	PhaseNotStarted UploadPhase = "not_started"

	// PhaseDestinationGranted means the server already granted an upload
	// destination; replay performs only the PUT and confirm steps.
	PhaseDestinationGranted UploadPhase = "destination_granted"
)

// FilePayload is the captured binary plus enough metadata to upload it.
type FilePayload struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Data        []byte `json:"data"`
}

// MediaRequest describes the grant request sent to the backend. ClientRef
// carries the client-generated media id so a repeated grant request after a
// crash resolves to the same server-side asset.
type MediaRequest struct {
	Module      string            `json:"module"`
	EntityID    string            `json:"entityId"`
	ClientRef   string            `json:"clientRef,omitempty"`
	FileName    string            `json:"fileName"`
	ContentType string            `json:"contentType"`
	Size        int64             `json:"size"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	QARequired  bool              `json:"qaRequired,omitempty"`
}

// ConfirmPayload is sent once the binary PUT succeeds. The backend treats a
// repeated confirmation for the same MediaID as a no-op.
type ConfirmPayload struct {
	MediaID    string            `json:"mediaId"`
	Module     string            `json:"module"`
	EntityID   string            `json:"entityId"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	QARequired bool              `json:"qaRequired,omitempty"`
}

// QueuedUpload is a deferred binary-upload intent. It is created when a
// direct upload attempt fails, consumed and deleted when replay succeeds,
// and left in place for a later retry when replay fails.
type QueuedUpload struct {
	ID       string      `json:"id"`
	Module   string      `json:"module"`
	EntityID string      `json:"entityId"`
	File     FilePayload `json:"file"`
	Phase    UploadPhase `json:"phase"`

	// DestinationGranted fields.
	UploadURL      string            `json:"uploadUrl,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	ConfirmPayload *ConfirmPayload   `json:"confirmPayload,omitempty"`

	// NotStarted fields.
	RequestPayload *MediaRequest `json:"requestPayload,omitempty"`

	MediaID    string            `json:"mediaId,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	QARequired bool              `json:"qaRequired,omitempty"`
	AuthToken  string            `json:"authToken,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}
