// Package notify keeps a durable, ordered record of delivered push
// notifications, decoupled from whether any UI was open at delivery time.
// Events arrive over the message bus; the log exposes a synchronous read
// API to the rest of the application.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"stayline/internal/events"
	"stayline/internal/logging"
	"stayline/internal/models"
	"stayline/internal/store"
)

// Log is the notification log over the KV store's notification namespace.
type Log struct {
	store *store.Store
	log   logging.Logger
}

func New(st *store.Store, log logging.Logger) *Log {
	return &Log{store: st, log: log.With("component", "notify")}
}

// Attach subscribes the log to push messages on the bus. Every open
// consumer persists independently; puts are keyed by the event's own id,
// so duplicate deliveries converge to one record.
func (l *Log) Attach(bus *events.Bus) events.SubscriptionID {
	return bus.Subscribe(events.TypePushNotification, func(ctx context.Context, msg events.Message) {
		rec := fromPayload(msg.Payload)
		if err := l.Record(ctx, rec); err != nil {
			// background delivery; the user is not waiting on this
			l.log.Error(ctx, "notification not recorded", "id", rec.ID, "error", err)
		}
	})
}

func fromPayload(payload map[string]any) *models.NotificationRecord {
	rec := &models.NotificationRecord{Data: map[string]any{}}
	for k, v := range payload {
		switch k {
		case "id":
			rec.ID, _ = v.(string)
		case "title":
			rec.Title, _ = v.(string)
		case "body":
			rec.Body, _ = v.(string)
		default:
			rec.Data[k] = v
		}
	}
	return rec
}

// Record persists a delivered notification with read = false. The read
// flag is monotonic: a duplicate delivery of an already-acknowledged event
// does not flip it back.
func (l *Log) Record(ctx context.Context, rec *models.NotificationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	return l.store.Update(ctx, store.NamespaceNotifications, rec.ID, func(cur *store.Record) (*store.Record, error) {
		if cur != nil {
			var prev models.NotificationRecord
			if err := json.Unmarshal(cur.Data, &prev); err != nil {
				return nil, fmt.Errorf("decode notification %s: %w", rec.ID, err)
			}
			rec.Read = rec.Read || prev.Read
			rec.CreatedAt = prev.CreatedAt
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode notification %s: %w", rec.ID, err)
		}
		return &store.Record{ID: rec.ID, Data: data, CreatedAt: rec.CreatedAt}, nil
	})
}

// List returns up to limit records, newest first. The store only promises
// ascending creation order, so the log sorts descending itself.
func (l *Log) List(ctx context.Context, limit int) ([]*models.NotificationRecord, error) {
	recs, err := l.store.List(ctx, store.NamespaceNotifications, 0)
	if err != nil {
		return nil, err
	}

	result := make([]*models.NotificationRecord, 0, len(recs))
	for _, r := range recs {
		var n models.NotificationRecord
		if err := json.Unmarshal(r.Data, &n); err != nil {
			l.log.Error(ctx, "skipping undecodable notification", "id", r.ID, "error", err)
			continue
		}
		result = append(result, &n)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkRead sets read = true. Already-read and unknown ids are a no-op.
func (l *Log) MarkRead(ctx context.Context, id string) error {
	return l.store.Update(ctx, store.NamespaceNotifications, id, func(cur *store.Record) (*store.Record, error) {
		if cur == nil {
			return nil, nil
		}
		var n models.NotificationRecord
		if err := json.Unmarshal(cur.Data, &n); err != nil {
			return nil, fmt.Errorf("decode notification %s: %w", id, err)
		}
		if n.Read {
			return nil, nil
		}
		n.Read = true
		data, err := json.Marshal(&n)
		if err != nil {
			return nil, fmt.Errorf("encode notification %s: %w", id, err)
		}
		return &store.Record{ID: id, Data: data, CreatedAt: n.CreatedAt}, nil
	})
}

// Unread counts records not yet acknowledged.
func (l *Log) Unread(ctx context.Context) (int, error) {
	recs, err := l.List(ctx, 0)
	if err != nil {
		return 0, err
	}
	var n int
	for _, r := range recs {
		if !r.Read {
			n++
		}
	}
	return n, nil
}

// ClearAll deletes every record currently in the log. Deletion is
// idempotent, so a partial failure only needs the failed ids retried.
func (l *Log) ClearAll(ctx context.Context) error {
	recs, err := l.store.List(ctx, store.NamespaceNotifications, 0)
	if err != nil {
		return err
	}

	var failed []string
	for _, r := range recs {
		if err := l.store.Delete(ctx, store.NamespaceNotifications, r.ID); err != nil {
			failed = append(failed, r.ID)
		}
	}

	// retry only what failed
	var still []string
	for _, id := range failed {
		if err := l.store.Delete(ctx, store.NamespaceNotifications, id); err != nil {
			still = append(still, id)
		}
	}
	if len(still) > 0 {
		return fmt.Errorf("clear notifications: %d records not deleted", len(still))
	}
	return nil
}
