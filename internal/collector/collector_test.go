package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"SignalSentinel/internal/model"
)

type fakeProvider struct {
	native  map[model.Resolution]bool
	calls   atomic.Int32
	counts  []int
	mu      sync.Mutex
	release chan struct{}
	err     error
	start   time.Time
	short   int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Supports(res model.Resolution) bool { return f.native[res] }

func (f *fakeProvider) Candles(ctx context.Context, _ string, res model.Resolution, count int) ([]model.Candle, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.counts = append(f.counts, count)
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Candle, count-f.short)
	for i := range out {
		p := 1.1 + float64(i)*0.0001
		out[i] = model.Candle{
			OpenTime: f.start.Add(time.Duration(i) * res.Duration()),
			Open:     p, High: p + 0.001, Low: p - 0.001, Close: p + 0.0005, Volume: 1,
		}
	}
	return out, nil
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManager_CoalescesConcurrentFetches(t *testing.T) {
	p := &fakeProvider{native: map[model.Resolution]bool{model.Res1h: true}, release: make(chan struct{}), start: epoch}
	m := NewManager(p, Options{Bars: 100, TTL: time.Minute})

	const callers = 10
	var wg sync.WaitGroup
	results := make([]model.Series, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Fetch(context.Background(), "EURUSD", model.Res1h, time.Time{})
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(p.release)
	wg.Wait()

	if got := p.calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].Len() != 100 {
			t.Errorf("caller %d: got %d candles", i, results[i].Len())
		}
	}
}

func TestManager_CacheTTL(t *testing.T) {
	now := epoch.Add(1000 * time.Hour)
	p := &fakeProvider{native: map[model.Resolution]bool{model.Res1h: true}, start: epoch}
	m := NewManager(p, Options{Bars: 50, TTL: time.Minute, Now: func() time.Time { return now }})

	for i := 0; i < 3; i++ {
		if _, err := m.Fetch(context.Background(), "EURUSD", model.Res1h, time.Time{}); err != nil {
			t.Fatal(err)
		}
	}
	if got := p.calls.Load(); got != 1 {
		t.Fatalf("expected cache hits within TTL, got %d provider calls", got)
	}

	now = now.Add(time.Minute)
	if _, err := m.Fetch(context.Background(), "EURUSD", model.Res1h, time.Time{}); err != nil {
		t.Fatal(err)
	}
	if got := p.calls.Load(); got != 2 {
		t.Fatalf("expected refetch after TTL, got %d provider calls", got)
	}

	if _, err := m.Fetch(context.Background(), "GBPUSD", model.Res1h, time.Time{}); err != nil {
		t.Fatal(err)
	}
	if got := p.calls.Load(); got != 3 {
		t.Fatalf("different instrument must not share a cache entry, got %d calls", got)
	}
}

func TestManager_CacheHitOnShortSeries(t *testing.T) {
	p := &fakeProvider{native: map[model.Resolution]bool{model.Res1h: true}, start: epoch, short: 10}
	m := NewManager(p, Options{Bars: 100, TTL: time.Minute})

	for i := 0; i < 3; i++ {
		s, err := m.Fetch(context.Background(), "EURUSD", model.Res1h, time.Time{})
		if err != nil {
			t.Fatal(err)
		}
		if s.Len() != 90 {
			t.Fatalf("got %d candles, want 90", s.Len())
		}
	}
	if got := p.calls.Load(); got != 1 {
		t.Fatalf("provider calls within TTL = %d, want 1", got)
	}

	if _, err := m.FetchCount(context.Background(), "EURUSD", model.Res1h, 200, time.Time{}); err != nil {
		t.Fatal(err)
	}
	if got := p.calls.Load(); got != 2 {
		t.Errorf("a deeper request must refetch, got %d calls", got)
	}
}

func TestManager_CoalescedCallerSurvivesOtherCancellation(t *testing.T) {
	p := &fakeProvider{native: map[model.Resolution]bool{model.Res1h: true}, release: make(chan struct{}), start: epoch}
	m := NewManager(p, Options{Bars: 50, TTL: time.Minute})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := m.Fetch(ctxA, "EURUSD", model.Res1h, time.Time{})
		errA <- err
	}()
	for p.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	type result struct {
		s   model.Series
		err error
	}
	resB := make(chan result, 1)
	go func() {
		s, err := m.Fetch(context.Background(), "EURUSD", model.Res1h, time.Time{})
		resB <- result{s, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller got %v", err)
	}
	close(p.release)

	r := <-resB
	if r.err != nil {
		t.Fatalf("live caller failed: %v", r.err)
	}
	if r.s.Len() != 50 {
		t.Errorf("live caller got %d candles", r.s.Len())
	}
	if got := p.calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestManager_SyntheticFourHour(t *testing.T) {
	p := &fakeProvider{native: map[model.Resolution]bool{model.Res1h: true}, start: epoch}
	m := NewManager(p, Options{Bars: 100, TTL: time.Minute})

	s, err := m.Fetch(context.Background(), "EURUSD", model.Res4h, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if s.Resolution != model.Res4h {
		t.Errorf("resolution = %s", s.Resolution)
	}
	if s.Len() < 100 {
		t.Errorf("expected at least 100 four-hour candles, got %d", s.Len())
	}
	for i := 1; i < s.Len(); i++ {
		if got := s.Candles[i].OpenTime.Sub(s.Candles[i-1].OpenTime); got != 4*time.Hour {
			t.Fatalf("candle %d spaced %v", i, got)
		}
	}
	if p.counts[0] != 404 {
		t.Errorf("base fetch count = %d, want 404", p.counts[0])
	}

	if _, err := m.Fetch(context.Background(), "EURUSD", model.Res1h, time.Time{}); err != nil {
		t.Fatal(err)
	}
	if got := p.calls.Load(); got != 1 {
		t.Errorf("1h job should reuse the cached base series, got %d calls", got)
	}
}

func TestManager_DropsIncompleteCandles(t *testing.T) {
	p := &fakeProvider{native: map[model.Resolution]bool{model.Res1h: true}, start: epoch}
	m := NewManager(p, Options{Bars: 10})

	asOf := epoch.Add(9*time.Hour + 30*time.Minute)
	s, err := m.Fetch(context.Background(), "EURUSD", model.Res1h, asOf)
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 9 {
		t.Fatalf("expected 9 completed candles, got %d", s.Len())
	}
	if !s.Last().OpenTime.Equal(epoch.Add(8 * time.Hour)) {
		t.Errorf("last candle opens at %v", s.Last().OpenTime)
	}
}

func TestManager_FetchErrors(t *testing.T) {
	p := &fakeProvider{native: map[model.Resolution]bool{model.Res1h: true}, start: epoch,
		err: &statusError{Code: 503, Body: "busy"}}
	m := NewManager(p, Options{Bars: 10})

	_, err := m.Fetch(context.Background(), "EURUSD", model.Res1h, time.Time{})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if !fe.Temporary {
		t.Error("503 should be temporary")
	}

	_, err = m.Fetch(context.Background(), "EURUSD", model.Res1d, time.Time{})
	if !errors.As(err, &fe) || fe.Temporary || !errors.Is(err, ErrUnsupportedResolution) {
		t.Fatalf("expected permanent unsupported-resolution error, got %v", err)
	}
}

func TestNormalize_DedupesAndSorts(t *testing.T) {
	in := []model.Candle{
		{OpenTime: epoch.Add(2 * time.Hour), Close: 3},
		{OpenTime: epoch, Close: 1},
		{OpenTime: epoch.Add(time.Hour), Close: 2},
		{OpenTime: epoch.Add(time.Hour), Close: 2.5},
	}
	out := normalize(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(out))
	}
	if out[1].Close != 2.5 {
		t.Errorf("duplicate should keep the later candle, got %v", out[1].Close)
	}
}
