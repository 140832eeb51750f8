package device

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"stayline/internal/api"
	"stayline/internal/common"
	"stayline/internal/logging"
	"stayline/internal/models"
	"stayline/internal/store"
)

type fakeAPI struct {
	registered []*models.Device
	err        error
}

func (f *fakeAPI) Ping(context.Context) error { return nil }

func (f *fakeAPI) CreateMedia(context.Context, string, *models.MediaRequest) (*api.MediaGrant, error) {
	return nil, nil
}

func (f *fakeAPI) UploadBinary(context.Context, string, map[string]string, models.FilePayload) error {
	return nil
}

func (f *fakeAPI) ConfirmMedia(context.Context, string, *models.ConfirmPayload) (*api.ConfirmResult, error) {
	return nil, nil
}

func (f *fakeAPI) RegisterDevice(_ context.Context, _ string, dev *models.Device) error {
	copied := *dev
	f.registered = append(f.registered, &copied)
	return f.err
}

func (f *fakeAPI) Fetch(context.Context, string, string, url.Values, map[string]string) ([]byte, error) {
	return nil, nil
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newRegistry(t *testing.T, f *fakeAPI) *Registry {
	t.Helper()
	st := store.New(":memory:", testLogger())
	require.NoError(t, st.Open(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return NewRegistry(st, f, testLogger(), "android", []string{"push", "camera"})
}

func TestEnsure_IDIsStable(t *testing.T) {
	r := newRegistry(t, &fakeAPI{})
	ctx := context.Background()

	first, err := r.Ensure(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first.DeviceID)
	assert.Equal(t, "android", first.Platform)

	second, err := r.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.DeviceID, second.DeviceID, "device id is never rotated")
}

func TestSubscribe_PushesEveryChange(t *testing.T) {
	f := &fakeAPI{}
	r := newRegistry(t, f)
	ctx := context.Background()

	require.NoError(t, r.Subscribe(ctx, "tok", "housekeeping"))
	require.NoError(t, r.Subscribe(ctx, "tok", "frontdesk"))
	require.NoError(t, r.Subscribe(ctx, "tok", "housekeeping"), "already subscribed is a no-op")

	require.Len(t, f.registered, 2)
	assert.ElementsMatch(t, []string{"housekeeping", "frontdesk"}, f.registered[1].Channels)

	chans, err := r.Channels(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"housekeeping", "frontdesk"}, chans)
}

func TestUnsubscribe(t *testing.T) {
	f := &fakeAPI{}
	r := newRegistry(t, f)
	ctx := context.Background()

	require.NoError(t, r.Subscribe(ctx, "tok", "housekeeping"))
	require.NoError(t, r.Unsubscribe(ctx, "tok", "housekeeping"))
	require.NoError(t, r.Unsubscribe(ctx, "tok", "ghost"), "unknown channel is a no-op")

	chans, err := r.Channels(ctx)
	require.NoError(t, err)
	assert.Empty(t, chans)
}

func TestSubscribe_PermissionDeniedIsSilent(t *testing.T) {
	f := &fakeAPI{err: common.ErrPermissionDenied}
	r := newRegistry(t, f)
	ctx := context.Background()

	require.NoError(t, r.Subscribe(ctx, "tok", "housekeeping"), "denied permission is not an error")

	// the local subscription survives for a later permission grant
	chans, err := r.Channels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"housekeeping"}, chans)
}
