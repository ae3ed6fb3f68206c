package images

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultProbeTimeout = 5 * time.Second
	DefaultMinBytes     = 1000
)

// Prober checks that a URL actually serves an image larger than a tracking pixel.
type Prober struct {
	client    *http.Client
	timeout   time.Duration
	minBytes  int64
	userAgent string
}

// NewProber applies defaults for zero values.
func NewProber(client *http.Client, timeout time.Duration, minBytes int64, userAgent string) *Prober {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if minBytes <= 0 {
		minBytes = DefaultMinBytes
	}
	return &Prober{client: client, timeout: timeout, minBytes: minBytes, userAgent: userAgent}
}

// Check issues a HEAD request. Timeouts and transport errors count as failure.
func (p *Prober) Check(ctx context.Context, rawURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		return false
	}
	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return false
	}
	return size > p.minBytes
}
