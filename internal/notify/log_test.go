package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"stayline/internal/events"
	"stayline/internal/logging"
	"stayline/internal/models"
	"stayline/internal/store"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newLog(t *testing.T) *Log {
	t.Helper()
	st := store.New(":memory:", testLogger())
	require.NoError(t, st.Open(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return New(st, testLogger())
}

func TestRecord_DuplicateDeliveryConvergesToOneRecord(t *testing.T) {
	l := newLog(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, &models.NotificationRecord{ID: "n1", Title: "X"}))
	require.NoError(t, l.Record(ctx, &models.NotificationRecord{ID: "n1", Title: "X"}))

	all, err := l.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "n1", all[0].ID)
	assert.Equal(t, "X", all[0].Title)
	assert.False(t, all[0].Read)
}

func TestRecord_DuplicateAfterReadKeepsReadState(t *testing.T) {
	l := newLog(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, &models.NotificationRecord{ID: "n1", Title: "X"}))
	require.NoError(t, l.MarkRead(ctx, "n1"))

	// platform re-delivers the same event
	require.NoError(t, l.Record(ctx, &models.NotificationRecord{ID: "n1", Title: "X"}))

	all, err := l.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Read, "read flag is monotonic")
}

func TestList_NewestFirst(t *testing.T) {
	l := newLog(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"n1", "n2", "n3"} {
		require.NoError(t, l.Record(ctx, &models.NotificationRecord{
			ID:        id,
			Title:     id,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := l.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "n3", all[0].ID, "most recent first")
	assert.Equal(t, "n1", all[2].ID)

	top, err := l.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "n3", top[0].ID)
}

func TestMarkRead_Monotonic(t *testing.T) {
	l := newLog(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, &models.NotificationRecord{ID: "n1", Title: "X"}))

	require.NoError(t, l.MarkRead(ctx, "n1"))
	require.NoError(t, l.MarkRead(ctx, "n1"), "second call is a no-op, not an error")

	all, err := l.List(ctx, 0)
	require.NoError(t, err)
	assert.True(t, all[0].Read)
}

func TestMarkRead_UnknownIDIsNoop(t *testing.T) {
	l := newLog(t)
	require.NoError(t, l.MarkRead(context.Background(), "ghost"))
}

func TestUnread(t *testing.T) {
	l := newLog(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, &models.NotificationRecord{ID: "n1"}))
	require.NoError(t, l.Record(ctx, &models.NotificationRecord{ID: "n2"}))
	require.NoError(t, l.MarkRead(ctx, "n1"))

	n, err := l.Unread(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClearAll(t *testing.T) {
	l := newLog(t)
	ctx := context.Background()

	for _, id := range []string{"n1", "n2", "n3"} {
		require.NoError(t, l.Record(ctx, &models.NotificationRecord{ID: id}))
	}

	require.NoError(t, l.ClearAll(ctx))

	all, err := l.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)

	// clearing an empty log is fine
	require.NoError(t, l.ClearAll(ctx))
}

func TestAttach_RecordsBusMessages(t *testing.T) {
	l := newLog(t)
	bus := events.NewBus()
	l.Attach(bus)

	payload := map[string]any{"id": "n1", "title": "Checkout", "body": "Room 12 checked out", "roomId": "room-12"}
	bus.Publish(context.Background(), events.Message{Type: events.TypePushNotification, Payload: payload})
	// duplicate platform delivery
	bus.Publish(context.Background(), events.Message{Type: events.TypePushNotification, Payload: payload})

	all, err := l.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Checkout", all[0].Title)
	assert.Equal(t, "room-12", all[0].Data["roomId"])
}
