package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayline/internal/common"
	"stayline/internal/logging"
	"stayline/internal/models"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func signedToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestCreateMedia(t *testing.T) {
	var gotAuth string
	var gotReq models.MediaRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/media", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(MediaGrant{
			MediaID:   "m-1",
			UploadURL: "https://blobs.example.com/m-1",
			Headers:   map[string]string{"X-Grant-Token": "g"},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, testLogger())
	token := signedToken(t, time.Hour)

	grant, err := c.CreateMedia(context.Background(), token, &models.MediaRequest{
		Module: "housekeeping", EntityID: "room-12", FileName: "door.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, "m-1", grant.MediaID)
	assert.Equal(t, "Bearer "+token, gotAuth)
	assert.Equal(t, "room-12", gotReq.EntityID)
}

func TestCreateMedia_ExpiredTokenNeverSent(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, testLogger())
	_, err := c.CreateMedia(context.Background(), signedToken(t, -time.Minute), &models.MediaRequest{})
	require.ErrorIs(t, err, common.ErrTokenExpired)
	assert.Equal(t, 0, hits)
}

func TestConfirmMedia_RepeatIsNoop(t *testing.T) {
	var confirms int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/media/m-1/confirm", r.URL.Path)
		confirms++
		json.NewEncoder(w).Encode(ConfirmResult{MediaID: "m-1", AlreadyConfirmed: confirms > 1})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, testLogger())
	payload := &models.ConfirmPayload{MediaID: "m-1", Module: "housekeeping", EntityID: "room-12"}

	first, err := c.ConfirmMedia(context.Background(), "", payload)
	require.NoError(t, err)
	assert.False(t, first.AlreadyConfirmed)

	second, err := c.ConfirmMedia(context.Background(), "", payload)
	require.NoError(t, err)
	assert.True(t, second.AlreadyConfirmed)
	assert.Equal(t, first.MediaID, second.MediaID)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "forbidden", status: http.StatusForbidden, want: common.ErrPermissionDenied},
		{name: "unauthorized", status: http.StatusUnauthorized, want: common.ErrPermissionDenied},
		{name: "server error", status: http.StatusInternalServerError, want: common.ErrNetworkFailure},
		{name: "not found", status: http.StatusNotFound, want: common.ErrNetworkFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, testLogger())
			err := c.Ping(context.Background())
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetch_BuildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/reports/occupancy", r.URL.Path)
		require.Equal(t, "2026-08", r.URL.Query().Get("month"))
		w.Write([]byte(`{"rate":0.81}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, testLogger())
	b, err := c.Fetch(context.Background(), http.MethodGet, "/api/v1/reports/occupancy",
		url.Values{"month": {"2026-08"}}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rate":0.81}`, string(b))
}

func TestUploadBinary_DefaultsContentType(t *testing.T) {
	var ct string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, testLogger())
	err := c.UploadBinary(context.Background(), srv.URL, nil, models.FilePayload{
		ContentType: "image/png", Data: []byte("png"),
	})
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
}
