package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/types"
)

// maxProbeBody caps how much of the root page the probe reads.
const maxProbeBody = 2 << 20

// ProbeResult describes one preflight request.
type ProbeResult struct {
	URL      string
	Status   int
	Bytes    int
	Duration time.Duration
	Encoding string
}

// Prober issues a single browser-like GET to a storefront before any worker
// launches, so a blanket block aborts the run early.
type Prober struct {
	client   *http.Client
	detector *BlockDetector
	logger   *slog.Logger
}

// NewProber creates a prober using a browser TLS fingerprint and the
// configured proxies.
func NewProber(cfg *config.Config, proxies *ProxyManager, logger *slog.Logger) (*Prober, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := NewTLSTransport(PickUserAgent(cfg.Browser.UserAgents), proxies.ProxyFunc(), logger)
	client := &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   cfg.Browser.NavigationTimeout,
	}

	return &Prober{
		client:   client,
		detector: NewBlockDetector(&cfg.Session),
		logger:   logger.With("component", "prober"),
	}, nil
}

// Probe fetches url and reports whether the site blocks this client. A block
// is returned as *types.BlockedError; network failures as *types.FetchError.
func (p *Prober) Probe(ctx context.Context, url string) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &types.FetchError{URL: url, Err: err}
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &types.FetchError{URL: url, Err: err, Retryable: isRetryableError(err)}
	}
	defer resp.Body.Close()

	reader, err := decompressReader(resp, io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return nil, &types.FetchError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: url, StatusCode: resp.StatusCode, Err: err, Retryable: true}
	}

	result := &ProbeResult{
		URL:      url,
		Status:   resp.StatusCode,
		Bytes:    len(body),
		Duration: time.Since(start),
		Encoding: resp.Header.Get("Content-Encoding"),
	}

	p.logger.Debug("probe complete",
		"url", url,
		"status", result.Status,
		"size", result.Bytes,
		"duration", result.Duration,
	)

	if err := p.detector.CheckStatus(url, resp.StatusCode); err != nil {
		return result, err
	}
	if err := p.detector.CheckText(url, string(body)); err != nil {
		return result, err
	}
	if resp.StatusCode >= 400 {
		return result, &types.FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
			Retryable:  resp.StatusCode >= 500,
		}
	}
	return result, nil
}

// Close releases pooled connections.
func (p *Prober) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// isRetryableError checks if a network error warrants a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}
