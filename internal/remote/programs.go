package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	// maxUploadSize guards against runaway envelopes; the service enforces
	// its own cap too.
	maxUploadSize = 64 * 1024 * 1024

	// maxDownloadSize caps response bodies so a confused server cannot OOM
	// the client.
	maxDownloadSize = 64 * 1024 * 1024

	contentTypeEnvelope = "application/x-msgpack"
)

// Get fetches the artifact envelope for key. A 404 is a clean miss.
func (c *Client) Get(parentCtx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := c.requestContext(parentCtx)
	defer cancel()

	endpoint := c.cfg.BaseURL + "/v1/programs/" + url.PathEscape(key)
	resp, err := c.doWithRetry(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("remotestore: build request: %w", err)
		}
		req.Header.Set("Accept", contentTypeEnvelope)
		c.authorize(req)
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, c.upstreamError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, false, fmt.Errorf("remotestore: read body: %w", err)
	}
	if len(body) > maxDownloadSize {
		return nil, false, fmt.Errorf("remotestore: response exceeds %d bytes", maxDownloadSize)
	}
	return body, true, nil
}

// Set uploads an artifact envelope. ttl, when positive, is forwarded as
// whole seconds and the service applies it; otherwise the service default
// wins.
func (c *Client) Set(parentCtx context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) > maxUploadSize {
		return fmt.Errorf("remotestore: envelope too large (%d bytes, max %d)", len(value), maxUploadSize)
	}

	ctx, cancel := c.requestContext(parentCtx)
	defer cancel()

	endpoint := c.cfg.BaseURL + "/v1/programs/" + url.PathEscape(key)
	if ttl > 0 {
		endpoint += "?ttl=" + strconv.FormatInt(int64(ttl.Seconds()), 10)
	}

	resp, err := c.doWithRetry(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(value))
		if err != nil {
			return nil, fmt.Errorf("remotestore: build request: %w", err)
		}
		req.Header.Set("Content-Type", contentTypeEnvelope)
		c.authorize(req)
		return c.httpClient.Do(req)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.upstreamError(resp)
	}
	return nil
}

// Delete removes key from the remote cache. Deleting an absent key
// succeeds, matching the local backends.
func (c *Client) Delete(parentCtx context.Context, key string) error {
	ctx, cancel := c.requestContext(parentCtx)
	defer cancel()

	endpoint := c.cfg.BaseURL + "/v1/programs/" + url.PathEscape(key)
	resp, err := c.doWithRetry(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("remotestore: build request: %w", err)
		}
		c.authorize(req)
		return c.httpClient.Do(req)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.upstreamError(resp)
	}
	return nil
}

// requestContext layers the per-request timeout over the caller's context.
func (c *Client) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.UpstreamTimeout > 0 {
		return context.WithTimeout(parent, c.cfg.UpstreamTimeout)
	}
	return context.WithCancel(parent)
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

// upstreamError turns a non-2xx response into an error, preferring the
// service's structured {"error": "..."} body over raw bytes.
func (c *Client) upstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var serr serviceError
	if err := json.Unmarshal(body, &serr); err == nil && serr.Error != "" {
		c.logger.Error("remote store error",
			zap.Int("status", resp.StatusCode),
			zap.String("error", serr.Error),
		)
		return fmt.Errorf("remotestore: upstream %d: %s", resp.StatusCode, serr.Error)
	}

	c.logger.Error("remote store error",
		zap.Int("status", resp.StatusCode),
		zap.String("body", truncate(string(body), 200)),
	)
	return fmt.Errorf("remotestore: upstream %d: %s", resp.StatusCode, truncate(string(body), 200))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
