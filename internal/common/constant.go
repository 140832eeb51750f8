// Package common contains shared constants and sentinel errors used across
// stayline components.
package common

// AuthHeaderName is the HTTP header used to carry the access token on
// outbound requests.
const AuthHeaderName = "Authorization"

// SyncTagMediaUploads is the background-sync tag registered for deferred
// media uploads.
const SyncTagMediaUploads = "media-uploads"
