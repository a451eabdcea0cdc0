package session

import (
	"context"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/IshaanNene/quickscout/internal/browser"
	"github.com/IshaanNene/quickscout/internal/extract"
)

// maxPayload caps a single captured body.
const maxPayload = 16 << 20

// CaptureBuffer collects JSON-ish network responses seen while a page loads.
// Identical bodies from the same URL are kept once.
type CaptureBuffer struct {
	keywords []string
	seen     *lru.Cache[string, struct{}]

	mu       sync.Mutex
	payloads []extract.Payload
}

// NewCaptureBuffer creates a buffer remembering up to size payload digests.
// Only responses whose URL contains one of keywords are kept; no keywords
// keeps everything.
func NewCaptureBuffer(size int, keywords []string) *CaptureBuffer {
	if size <= 0 {
		size = 1024
	}
	seen, _ := lru.New[string, struct{}](size) // only errors on size <= 0
	lower := make([]string, 0, len(keywords))
	for _, k := range keywords {
		lower = append(lower, strings.ToLower(k))
	}
	return &CaptureBuffer{keywords: lower, seen: seen}
}

// Handle is a browser.Page response handler.
func (b *CaptureBuffer) Handle(r browser.Response) {
	if r.Status != 0 && r.Status != 200 {
		return
	}
	if !capturable(r.ContentType) || !b.wanted(r.URL) || r.Body == nil {
		return
	}
	body, err := r.Body()
	if err != nil || len(body) == 0 || len(body) > maxPayload {
		return
	}

	h := fnv.New64a()
	h.Write(body)
	key := r.URL + "#" + strconv.FormatUint(h.Sum64(), 16)
	if found, _ := b.seen.ContainsOrAdd(key, struct{}{}); found {
		return
	}

	b.mu.Lock()
	b.payloads = append(b.payloads, extract.Payload{
		URL:         r.URL,
		ContentType: r.ContentType,
		Status:      r.Status,
		Body:        body,
	})
	b.mu.Unlock()
}

func capturable(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" ||
		strings.Contains(ct, "json") ||
		strings.Contains(ct, "x-component") ||
		strings.HasPrefix(ct, "text/plain")
}

func (b *CaptureBuffer) wanted(url string) bool {
	if len(b.keywords) == 0 {
		return true
	}
	lower := strings.ToLower(url)
	for _, k := range b.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Len is the number of captured payloads.
func (b *CaptureBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.payloads)
}

// Payloads returns a copy of the captured payloads in arrival order.
func (b *CaptureBuffer) Payloads() []extract.Payload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]extract.Payload(nil), b.payloads...)
}

// pageSource exposes a loaded page and its capture buffer to the
// extraction chain. The HTML is read once.
type pageSource struct {
	page    browser.Page
	capture *CaptureBuffer

	once sync.Once
	html string
	err  error
}

func (s *pageSource) URL() string { return s.page.URL() }

func (s *pageSource) HTML(ctx context.Context) (string, error) {
	s.once.Do(func() {
		s.html, s.err = s.page.HTML(ctx)
	})
	return s.html, s.err
}

func (s *pageSource) Evaluate(ctx context.Context, script string) ([]byte, error) {
	return s.page.Evaluate(ctx, script)
}

func (s *pageSource) Payloads() []extract.Payload { return s.capture.Payloads() }
