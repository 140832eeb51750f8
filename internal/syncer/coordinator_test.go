package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayline/internal/logging"
)

type fakeReplayer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeReplayer) Replay(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeReplayer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeReplayer) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakePinger struct {
	mu     sync.Mutex
	online bool
}

func (f *fakePinger) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.online {
		return nil
	}
	return errors.New("unreachable")
}

func (f *fakePinger) set(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = online
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterIntent_UnsupportedIsSilentNoop(t *testing.T) {
	r := &fakeReplayer{}
	c := New(r, &fakePinger{online: true}, testLogger(), 10*time.Millisecond, false)

	c.RegisterIntent("media-uploads")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	assert.Equal(t, 0, r.count(), "no replay without a registered intent")
}

func TestFlushNow_WorksInDegradedMode(t *testing.T) {
	r := &fakeReplayer{}
	c := New(r, &fakePinger{online: true}, testLogger(), 10*time.Millisecond, false)

	require.NoError(t, c.FlushNow(context.Background()))
	assert.Equal(t, 1, r.count())
}

func TestWakeWhileOnline_Replays(t *testing.T) {
	r := &fakeReplayer{}
	c := New(r, &fakePinger{online: true}, testLogger(), 10*time.Millisecond, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, c.Online, time.Second, 5*time.Millisecond)
	c.RegisterIntent("media-uploads")

	require.Eventually(t, func() bool { return r.count() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestReconnectTransition_Replays(t *testing.T) {
	r := &fakeReplayer{}
	p := &fakePinger{online: false}
	c := New(r, p, testLogger(), 10*time.Millisecond, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.RegisterIntent("media-uploads")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, r.count(), "nothing replays while offline")

	p.set(true)
	require.Eventually(t, func() bool { return r.count() >= 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestFailedPassKeepsIntent(t *testing.T) {
	r := &fakeReplayer{}
	r.setErr(errors.New("2 of 3 records still pending"))
	p := &fakePinger{online: true}
	c := New(r, p, testLogger(), 10*time.Millisecond, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, c.Online, time.Second, 5*time.Millisecond)
	c.RegisterIntent("media-uploads")
	require.Eventually(t, func() bool { return r.count() >= 1 }, time.Second, 5*time.Millisecond)

	// pass failed, intent restored: the next reconnect transition retries
	r.setErr(nil)
	p.set(false)
	require.Eventually(t, func() bool { return !c.Online() }, time.Second, 5*time.Millisecond)
	p.set(true)
	require.Eventually(t, func() bool { return r.count() >= 2 }, 5*time.Second, 10*time.Millisecond)
}
