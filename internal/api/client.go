// Package api is the JSON/HTTPS client for the property-management backend.
// It covers the boundary the offline components need: the two-phase media
// upload (grant, binary PUT, confirm), device registration, reachability
// probing and plain cacheable reads.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"stayline/internal/common"
	"stayline/internal/logging"
	"stayline/internal/models"
	"stayline/internal/netx"
)

// MediaGrant is the backend's answer to a grant request: where to PUT the
// binary and which headers the destination requires.
type MediaGrant struct {
	MediaID   string            `json:"mediaId"`
	UploadURL string            `json:"uploadUrl"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// ConfirmResult reports the confirm outcome. AlreadyConfirmed is set when
// the backend had seen this media id before; repeating a confirmation is a
// contractual no-op.
type ConfirmResult struct {
	MediaID          string `json:"mediaId"`
	AlreadyConfirmed bool   `json:"alreadyConfirmed,omitempty"`
}

// Client is the backend boundary used by the upload queue, the device
// registry, the sync coordinator and the response cache.
type Client interface {
	Ping(ctx context.Context) error
	CreateMedia(ctx context.Context, token string, req *models.MediaRequest) (*MediaGrant, error)
	UploadBinary(ctx context.Context, uploadURL string, headers map[string]string, file models.FilePayload) error
	ConfirmMedia(ctx context.Context, token string, payload *models.ConfirmPayload) (*ConfirmResult, error)
	RegisterDevice(ctx context.Context, token string, dev *models.Device) error
	Fetch(ctx context.Context, method, path string, query url.Values, headers map[string]string) ([]byte, error)
}

// HTTPClient implements Client over net/http.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     logging.Logger
}

func NewHTTPClient(baseURL string, log logging.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		log:     log.With("component", "api"),
	}
}

// Ping probes backend reachability. Any error means "treat as offline".
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.doJSON(ctx, http.MethodGet, "/api/v1/ping", "", nil)
	return err
}

// CreateMedia requests an upload destination for the described file.
func (c *HTTPClient) CreateMedia(ctx context.Context, token string, req *models.MediaRequest) (*MediaGrant, error) {
	body, err := c.doJSON(ctx, http.MethodPost, "/api/v1/media", token, req)
	if err != nil {
		return nil, err
	}
	var grant MediaGrant
	if err := json.Unmarshal(body, &grant); err != nil {
		return nil, fmt.Errorf("%w: decode media grant: %v", common.ErrNetworkFailure, err)
	}
	return &grant, nil
}

// UploadBinary PUTs the file to the granted destination.
func (c *HTTPClient) UploadBinary(ctx context.Context, uploadURL string, headers map[string]string, file models.FilePayload) error {
	if headers == nil && file.ContentType != "" {
		headers = map[string]string{"Content-Type": file.ContentType}
	}
	return netx.UploadToPresignedURL(ctx, c.http, uploadURL, headers, file.Data)
}

// ConfirmMedia tells the backend the binary is in place. Safe to repeat for
// the same media id.
func (c *HTTPClient) ConfirmMedia(ctx context.Context, token string, payload *models.ConfirmPayload) (*ConfirmResult, error) {
	path := "/api/v1/media/" + url.PathEscape(payload.MediaID) + "/confirm"
	body, err := c.doJSON(ctx, http.MethodPost, path, token, payload)
	if err != nil {
		return nil, err
	}
	var result ConfirmResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: decode confirm result: %v", common.ErrNetworkFailure, err)
	}
	return &result, nil
}

// RegisterDevice uploads the current device registration and channel set.
func (c *HTTPClient) RegisterDevice(ctx context.Context, token string, dev *models.Device) error {
	_, err := c.doJSON(ctx, http.MethodPost, "/api/v1/devices", token, dev)
	return err
}

// Fetch performs a plain read used by the response cache. The caller owns
// caching policy; Fetch just moves bytes.
func (c *HTTPClient) Fetch(ctx context.Context, method, path string, query url.Values, headers map[string]string) ([]byte, error) {
	if method == "" {
		method = http.MethodGet
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.send(req)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path, token string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		if expired(token) {
			return nil, fmt.Errorf("request %s: %w", path, common.ErrTokenExpired)
		}
		req.Header.Set(common.AuthHeaderName, "Bearer "+token)
	}

	return c.send(req)
}

func (c *HTTPClient) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", common.ErrNetworkFailure, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", common.ErrNetworkFailure, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s %s: %s", common.ErrPermissionDenied, req.Method, req.URL.Path, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s %s: %s", common.ErrNetworkFailure, req.Method, req.URL.Path, resp.Status)
	}
	return b, nil
}

// expired reports whether the bearer token carries an exp claim in the
// past. The check is unverified on purpose: the client cannot validate the
// signature, it only avoids sending requests that are guaranteed to bounce.
func expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// opaque tokens pass through; the server decides
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
