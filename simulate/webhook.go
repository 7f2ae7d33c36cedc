// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package simulate

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// WebhookClient makes the requests Twilio would make against the service
type WebhookClient interface {
	POST(ctx context.Context, target string, form url.Values, header http.Header) (status int, body []byte, err error)
	GET(ctx context.Context, target string) (status int, body []byte, err error)
}

// HTTPClient talks to a running service over the network
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates a webhook client; a zero timeout means 10s
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) POST(ctx context.Context, target string, form url.Values, header http.Header) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, errors.Wrap(err, "build webhook request")
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "voi-simulate/1.0")
	return c.do(req)
}

func (c *HTTPClient) GET(ctx context.Context, target string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, errors.Wrap(err, "build media request")
	}
	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) (int, []byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "%s %s", req.Method, req.URL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, "read response body")
	}
	return resp.StatusCode, body, nil
}

// HandlerClient serves requests straight from an http.Handler without a network
type HandlerClient struct {
	Handler http.Handler
}

func (c HandlerClient) POST(ctx context.Context, target string, form url.Values, header http.Header) (int, []byte, error) {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode())).WithContext(ctx)
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.serve(req)
}

func (c HandlerClient) GET(ctx context.Context, target string) (int, []byte, error) {
	return c.serve(httptest.NewRequest(http.MethodGet, target, nil).WithContext(ctx))
}

func (c HandlerClient) serve(req *http.Request) (int, []byte, error) {
	rec := httptest.NewRecorder()
	c.Handler.ServeHTTP(rec, req)
	return rec.Code, bytes.Clone(rec.Body.Bytes()), nil
}
