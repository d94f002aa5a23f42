package discovery

import (
	"context"
	"sync"
)

// StaticResolver always resolves to a fixed address.
type StaticResolver string

// Resolve returns the address.
func (r StaticResolver) Resolve(_ context.Context) (string, error) {
	return string(r), nil
}

// ScanResolver resolves the decoder address by scanning, caching the
// result until Invalidate is called.
type ScanResolver struct {
	scanner *Scanner

	mu     sync.Mutex
	cached string
}

// NewScanResolver creates a resolver backed by scanner.
func NewScanResolver(scanner *Scanner) *ScanResolver {
	return &ScanResolver{scanner: scanner}
}

// Resolve returns the cached address, scanning first if there is none.
// A failed scan is returned as an error and nothing is cached.
func (r *ScanResolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != "" {
		return r.cached, nil
	}
	addr, err := r.scanner.Scan(ctx)
	if err != nil {
		return "", err
	}
	r.cached = addr
	return addr, nil
}

// Invalidate drops the cached address so the next Resolve rescans.
func (r *ScanResolver) Invalidate() {
	r.mu.Lock()
	r.cached = ""
	r.mu.Unlock()
}
