package fetcher

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/IshaanNene/quickscout/internal/config"
)

// StealthProfile is the fingerprint one browser session presents. A fresh
// profile is drawn per launch so parallel workers do not share one.
type StealthProfile struct {
	UserAgent string

	ViewportWidth  int
	ViewportHeight int

	// Language override (e.g., "en-IN")
	Language string

	// Platform override (e.g., "Win32", "MacIntel", "Linux x86_64")
	Platform string

	// Hardware concurrency (number of CPU cores to report)
	HardwareConcurrency int

	// DeviceMemory (GB of RAM to report)
	DeviceMemory int
}

var viewports = []struct{ w, h int }{
	{1920, 1080}, {1366, 768}, {1536, 864},
	{1440, 900}, {1280, 720},
}

// NewStealthProfile draws a random profile from the browser config. The
// configured viewport is used when set, otherwise a common desktop size.
func NewStealthProfile(cfg *config.BrowserConfig) *StealthProfile {
	p := &StealthProfile{
		UserAgent:           PickUserAgent(cfg.UserAgents),
		Language:            "en-IN",
		HardwareConcurrency: 4 + rand.Intn(13), // 4-16 cores
		DeviceMemory:        8,
	}

	vp := viewports[rand.Intn(len(viewports))]
	p.ViewportWidth, p.ViewportHeight = vp.w, vp.h
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		p.ViewportWidth, p.ViewportHeight = cfg.ViewportWidth, cfg.ViewportHeight
	}

	p.Platform = platformFor(p.UserAgent)
	return p
}

// WindowSize renders the viewport as a Chromium --window-size value.
func (p *StealthProfile) WindowSize() string {
	return fmt.Sprintf("%d,%d", p.ViewportWidth, p.ViewportHeight)
}

// PickUserAgent returns a random entry, or a stock desktop Chrome agent when
// the list is empty.
func PickUserAgent(agents []string) string {
	if len(agents) == 0 {
		return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	}
	return agents[rand.Intn(len(agents))]
}

func platformFor(ua string) string {
	switch {
	case strings.Contains(ua, "Macintosh"):
		return "MacIntel"
	case strings.Contains(ua, "X11"), strings.Contains(ua, "Linux"):
		return "Linux x86_64"
	default:
		return "Win32"
	}
}

// InitScript returns JavaScript that runs before any page script on every
// new document.
func (p *StealthProfile) InitScript() string {
	return fmt.Sprintf(`
Object.defineProperty(navigator, 'platform', { get: () => '%s' });
Object.defineProperty(navigator, 'language', { get: () => '%s' });
Object.defineProperty(navigator, 'languages', { get: () => ['%s', 'en'] });
Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d });
Object.defineProperty(navigator, 'deviceMemory', { get: () => %d });
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });

if (!window.chrome) {
	window.chrome = {
		runtime: { onMessage: { addListener: () => {} }, sendMessage: () => {} },
		loadTimes: () => ({}),
		csi: () => ({}),
	};
}

if (window.navigator.permissions) {
	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications' ?
			Promise.resolve({ state: Notification.permission }) :
			originalQuery(parameters)
	);
}

Object.defineProperty(navigator, 'plugins', {
	get: () => {
		const plugins = [
			{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
			{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
			{ name: 'Native Client', filename: 'internal-nacl-plugin' },
		];
		plugins.length = 3;
		return plugins;
	}
});
`, p.Platform, p.Language, p.Language, p.HardwareConcurrency, p.DeviceMemory)
}

// TLSTransport is an http.RoundTripper with a browser-like TLS fingerprint
// and header set. The preflight probe uses it.
type TLSTransport struct {
	inner     *http.Transport
	userAgent string
	logger    *slog.Logger
}

// NewTLSTransport creates a transport that mimics common browser TLS
// fingerprints. proxy may be nil.
func NewTLSTransport(userAgent string, proxy func(*http.Request) (*url.URL, error), logger *slog.Logger) *TLSTransport {
	return &TLSTransport{
		inner: &http.Transport{
			Proxy: proxy,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:     randomTLSConfig(),
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			DisableCompression:  true, // decoded by the prober, including brotli
		},
		userAgent: userAgent,
		logger:    logger.With("component", "tls_transport"),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *TLSTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Browser header order
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	}
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", "en-IN,en;q=0.9")
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	}
	if req.Header.Get("Sec-Fetch-Dest") == "" {
		req.Header.Set("Sec-Fetch-Dest", "document")
		req.Header.Set("Sec-Fetch-Mode", "navigate")
		req.Header.Set("Sec-Fetch-Site", "none")
		req.Header.Set("Sec-Fetch-User", "?1")
	}
	if req.Header.Get("Upgrade-Insecure-Requests") == "" {
		req.Header.Set("Upgrade-Insecure-Requests", "1")
	}

	return t.inner.RoundTrip(req)
}

// CloseIdleConnections releases pooled connections.
func (t *TLSTransport) CloseIdleConnections() {
	t.inner.CloseIdleConnections()
}

// randomTLSConfig creates a TLS config that mimics browser fingerprints.
func randomTLSConfig() *tls.Config {
	cipherSuites := [][]uint16{
		// Chrome-like
		{
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
		// Firefox-like
		{
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		},
	}

	selected := cipherSuites[rand.Intn(len(cipherSuites))]

	return &tls.Config{
		CipherSuites: selected,
		MinVersion:   tls.VersionTLS12,
		MaxVersion:   tls.VersionTLS13,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
			tls.CurveP384,
		},
	}
}
