package imagegen

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	referenceFetchTimeout = 30 * time.Second
	referenceCacheTTL     = 10 * time.Minute
	maxReferenceBytes     = 20 << 20 // 20 MiB per reference
)

// referenceImage is one fetched reference, ready to attach to a model call.
type referenceImage struct {
	Data     []byte
	MIMEType string
}

// refCacheEntry holds a fetched reference with its timestamp for TTL
// expiration.
type refCacheEntry struct {
	image     referenceImage
	fetchedAt time.Time
}

// referenceFetcher downloads reference images with a small TTL cache so
// that iterations of the same request do not refetch identical URLs.
// Expired entries are cleaned up lazily on lookup; there is no background
// goroutine.
type referenceFetcher struct {
	httpClient *http.Client

	mu      sync.RWMutex
	entries map[string]*refCacheEntry
	ttl     time.Duration
}

func newReferenceFetcher() *referenceFetcher {
	return &referenceFetcher{
		httpClient: &http.Client{Timeout: referenceFetchTimeout},
		entries:    make(map[string]*refCacheEntry),
		ttl:        referenceCacheTTL,
	}
}

// fetch downloads every URL once for this batch. A failed fetch skips that
// reference with a warning; the batch never hard-fails on references.
func (f *referenceFetcher) fetch(ctx context.Context, urls []string) []referenceImage {
	if len(urls) == 0 {
		return nil
	}

	images := make([]referenceImage, 0, len(urls))
	for _, url := range urls {
		if cached, ok := f.lookup(url); ok {
			images = append(images, cached)
			continue
		}
		img, err := f.download(ctx, url)
		if err != nil {
			slog.Warn("Skipping reference image", "url", url, "error", err)
			continue
		}
		f.store(url, img)
		images = append(images, img)
	}
	return images
}

func (f *referenceFetcher) download(ctx context.Context, url string) (referenceImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return referenceImage{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return referenceImage{}, fmt.Errorf("fetch reference: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return referenceImage{}, fmt.Errorf("reference returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReferenceBytes+1))
	if err != nil {
		return referenceImage{}, fmt.Errorf("read reference body: %w", err)
	}
	if len(data) > maxReferenceBytes {
		return referenceImage{}, fmt.Errorf("reference exceeds %d bytes", maxReferenceBytes)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return referenceImage{Data: data, MIMEType: mimeType}, nil
}

func (f *referenceFetcher) lookup(url string) (referenceImage, bool) {
	f.mu.RLock()
	entry, ok := f.entries[url]
	f.mu.RUnlock()

	if !ok {
		return referenceImage{}, false
	}

	if time.Since(entry.fetchedAt) > f.ttl {
		// Re-check under the write lock: a concurrent store may have
		// replaced the entry with a fresh one in the meantime.
		f.mu.Lock()
		if current, ok := f.entries[url]; ok && time.Since(current.fetchedAt) > f.ttl {
			delete(f.entries, url)
		}
		f.mu.Unlock()
		return referenceImage{}, false
	}

	return entry.image, true
}

func (f *referenceFetcher) store(url string, img referenceImage) {
	f.mu.Lock()
	f.entries[url] = &refCacheEntry{image: img, fetchedAt: time.Now()}
	f.mu.Unlock()
}
