package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeSource struct {
	records map[string]string
	err     error

	lookups atomic.Int64
}

func (f *fakeSource) Lookup(ctx context.Context, mailboxID string) (string, error) {
	f.lookups.Add(1)
	if f.err != nil {
		return "", f.err
	}
	raw, ok := f.records[mailboxID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, mailboxID)
	}
	return raw, nil
}

func TestResolve_ParsesDelimitedRecord(t *testing.T) {
	t.Parallel()

	src := &fakeSource{records: map[string]string{
		"mb-1": "tok-1, phone-1 , waba-1",
	}}
	r := NewResolver(src)

	creds, err := r.Resolve(context.Background(), "mb-1")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if creds.Token != "tok-1" || creds.PhoneID != "phone-1" || creds.WabaID != "waba-1" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestResolve_TwoPartsIsEnough(t *testing.T) {
	t.Parallel()

	src := &fakeSource{records: map[string]string{"mb-1": "tok,phone"}}
	r := NewResolver(src)

	creds, err := r.Resolve(context.Background(), "mb-1")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if creds.WabaID != "" {
		t.Fatalf("expected empty waba id, got %q", creds.WabaID)
	}
}

func TestResolve_Malformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
	}{
		{"single part", "just-a-token"},
		{"empty record", ""},
		{"blank parts", " , "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			src := &fakeSource{records: map[string]string{"mb-1": tc.raw}}
			r := NewResolver(src)

			_, err := r.Resolve(context.Background(), "mb-1")
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestResolve_NotFound(t *testing.T) {
	t.Parallel()

	r := NewResolver(&fakeSource{records: map[string]string{}})

	_, err := r.Resolve(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveCached_SingleBackendLookup(t *testing.T) {
	t.Parallel()

	src := &fakeSource{records: map[string]string{"mb-1": "tok,phone"}}
	r := NewResolver(src)
	ctx := context.Background()

	first, err := r.ResolveCached(ctx, "mb-1")
	if err != nil {
		t.Fatalf("first ResolveCached() error: %v", err)
	}
	second, err := r.ResolveCached(ctx, "mb-1")
	if err != nil {
		t.Fatalf("second ResolveCached() error: %v", err)
	}

	if first != second {
		t.Fatalf("expected the cached credentials to be shared, got %p and %p", first, second)
	}
	if n := src.lookups.Load(); n != 1 {
		t.Fatalf("expected exactly 1 backend lookup, got %d", n)
	}
}

func TestResolveCached_ConcurrentCallersCollapse(t *testing.T) {
	t.Parallel()

	src := &fakeSource{records: map[string]string{"mb-1": "tok,phone"}}
	r := NewResolver(src)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.ResolveCached(context.Background(), "mb-1"); err != nil {
				t.Errorf("ResolveCached() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := src.lookups.Load(); n != 1 {
		t.Fatalf("expected exactly 1 backend lookup, got %d", n)
	}
}

func TestResolveCached_FailuresAreNotCached(t *testing.T) {
	t.Parallel()

	src := &fakeSource{records: map[string]string{}}
	r := NewResolver(src)
	ctx := context.Background()

	if _, err := r.ResolveCached(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.ResolveCached(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Both calls must have reached the backend.
	if n := src.lookups.Load(); n != 2 {
		t.Fatalf("expected 2 backend lookups, got %d", n)
	}
}
