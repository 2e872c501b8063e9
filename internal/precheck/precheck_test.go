package precheck

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/foxzi/wabulk/internal/gateway"
	"github.com/foxzi/wabulk/internal/recipient"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type lookupGateway struct {
	mu       sync.Mutex
	calls    map[string]int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
	resolve  func(addr string) (string, error)
}

func newLookupGateway(resolve func(addr string) (string, error)) *lookupGateway {
	return &lookupGateway{calls: make(map[string]int), resolve: resolve}
}

func (g *lookupGateway) ResolveExistence(ctx context.Context, addr string) (string, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		cur := g.maxSeen.Load()
		if n <= cur || g.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}

	g.mu.Lock()
	g.calls[addr]++
	g.mu.Unlock()

	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.resolve(addr)
}

func (g *lookupGateway) SendText(ctx context.Context, id, text string) error { return nil }

func (g *lookupGateway) SendMedia(ctx context.Context, id string, media *gateway.Media, caption string) error {
	return nil
}

func recipients(addrs ...string) []recipient.Recipient {
	out := make([]recipient.Recipient, len(addrs))
	for i, a := range addrs {
		out[i] = recipient.Recipient{Address: a, RowIndex: i + 1}
	}
	return out
}

func TestResolve_PreservesOrderAndDeduplicates(t *testing.T) {
	gw := newLookupGateway(func(addr string) (string, error) {
		return addr + "@c.us", nil
	})
	p := New(gw, Config{}, nil)

	in := recipients("1", "2", "1", "3", "2")
	out := p.Resolve(context.Background(), in)

	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i, r := range out {
		if r.Address != in[i].Address || r.RowIndex != in[i].RowIndex {
			t.Errorf("out[%d] = %+v, want recipient %+v", i, r, in[i])
		}
		if r.ResolvedID != in[i].Address+"@c.us" {
			t.Errorf("out[%d].ResolvedID = %q", i, r.ResolvedID)
		}
	}
	for addr, n := range gw.calls {
		if n != 1 {
			t.Errorf("address %s looked up %d times", addr, n)
		}
	}
	if len(gw.calls) != 3 {
		t.Errorf("expected 3 lookups, got %d", len(gw.calls))
	}
}

func TestResolve_FailuresAreIsolated(t *testing.T) {
	gw := newLookupGateway(func(addr string) (string, error) {
		switch addr {
		case "err":
			return "", errors.New("boom")
		case "none":
			return "", nil
		case "panic":
			panic("gateway bug")
		}
		return addr + "@c.us", nil
	})
	p := New(gw, Config{}, nil)

	out := p.Resolve(context.Background(), recipients("ok1", "err", "none", "panic", "ok2"))

	want := []bool{true, false, false, false, true}
	for i, r := range out {
		if r.Reachable() != want[i] {
			t.Errorf("%s: Reachable() = %v, want %v", r.Address, r.Reachable(), want[i])
		}
	}
}

func TestResolve_BoundedConcurrency(t *testing.T) {
	gw := newLookupGateway(func(addr string) (string, error) { return addr, nil })
	gw.delay = 20 * time.Millisecond
	p := New(gw, Config{Concurrency: 3}, nil)

	addrs := make([]string, 20)
	for i := range addrs {
		addrs[i] = fmt.Sprintf("%d", i)
	}
	p.Resolve(context.Background(), recipients(addrs...))

	if got := gw.maxSeen.Load(); got > 3 {
		t.Errorf("max concurrent lookups = %d, want <= 3", got)
	}
	if got := gw.maxSeen.Load(); got < 2 {
		t.Errorf("lookups did not run concurrently (max %d)", got)
	}
}

func TestResolve_LookupTimeout(t *testing.T) {
	gw := newLookupGateway(func(addr string) (string, error) { return addr, nil })
	gw.delay = time.Second
	p := New(gw, Config{LookupTimeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	out := p.Resolve(context.Background(), recipients("1", "2"))
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("lookup timeout not applied, took %v", time.Since(start))
	}
	for _, r := range out {
		if r.Reachable() {
			t.Errorf("%s should be unresolved after timeout", r.Address)
		}
	}
}

func TestResolve_NoGateway(t *testing.T) {
	p := New(nil, Config{}, nil)

	out := p.Resolve(context.Background(), recipients("1", "2", "1"))
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	for _, r := range out {
		if r.Reachable() {
			t.Errorf("%s should be unresolved without a gateway", r.Address)
		}
	}
}

func TestResolve_Empty(t *testing.T) {
	gw := newLookupGateway(func(addr string) (string, error) { return addr, nil })
	out := New(gw, Config{}, nil).Resolve(context.Background(), nil)
	if len(out) != 0 {
		t.Errorf("expected empty result, got %d", len(out))
	}
}
