// Package netx holds low-level HTTP helpers shared by the API client.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"stayline/internal/common"
)

// UploadToPresignedURL PUTs the binary to a destination the server already
// granted (typically a presigned object-storage URL). Any granted headers
// are sent verbatim; the content type defaults to octet-stream when the
// grant does not dictate one.
func UploadToPresignedURL(ctx context.Context, client *http.Client, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: upload: %v", common.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: upload failed: %s; body: %s", common.ErrNetworkFailure, resp.Status, string(b))
	}
	return nil
}
