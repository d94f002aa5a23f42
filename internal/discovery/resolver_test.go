package discovery

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestStaticResolver(t *testing.T) {
	got, err := StaticResolver("10.0.0.5:3601").Resolve(context.Background())
	if err != nil || got != "10.0.0.5:3601" {
		t.Errorf("Resolve() = %q, %v", got, err)
	}
}

func TestScanResolver_CachesUntilInvalidated(t *testing.T) {
	var scans atomic.Int32
	var answer atomic.Value
	answer.Store("10.0.0.7")

	r := NewScanResolver(&Scanner{
		Port:   3601,
		Subnet: "10.0.0.",
		Probe: func(_ context.Context, addr string, _ time.Duration) bool {
			if addr == "10.0.0.1:3601" {
				scans.Add(1)
			}
			return addr == answer.Load().(string)+":3601"
		},
	})

	for range 3 {
		got, err := r.Resolve(context.Background())
		if err != nil || got != "10.0.0.7:3601" {
			t.Fatalf("Resolve() = %q, %v", got, err)
		}
	}
	if scans.Load() != 1 {
		t.Errorf("scans = %d, want 1", scans.Load())
	}

	answer.Store("10.0.0.8")
	r.Invalidate()

	got, err := r.Resolve(context.Background())
	if err != nil || got != "10.0.0.8:3601" {
		t.Fatalf("Resolve() after Invalidate = %q, %v", got, err)
	}
	if scans.Load() != 2 {
		t.Errorf("scans = %d, want 2", scans.Load())
	}
}

func TestScanResolver_FailureNotCached(t *testing.T) {
	var found atomic.Bool
	r := NewScanResolver(&Scanner{
		Port:   3601,
		Subnet: "10.0.0.",
		Probe: func(_ context.Context, addr string, _ time.Duration) bool {
			return found.Load() && addr == "10.0.0.3:3601"
		},
	})

	if _, err := r.Resolve(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrNotFound", err)
	}

	found.Store(true)
	got, err := r.Resolve(context.Background())
	if err != nil || got != "10.0.0.3:3601" {
		t.Errorf("Resolve() = %q, %v", got, err)
	}
}
