package models

import "time"

// CacheEntry is a memoized read-only API response. Expiry is absolute:
// Timestamp plus the TTL the caller supplied at write time.
type CacheEntry struct {
	Key       string    `json:"key"`
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Expiry    time.Time `json:"expiry"`
}

// Expired reports whether the entry must be treated as absent at the given
// time. A read exactly at Expiry is already a miss.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.Expiry)
}
