package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"SignalSentinel/internal/metrics"
	"SignalSentinel/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Options configures a Manager.
type Options struct {
	Bars          int           // candles per fetch
	TTL           time.Duration // cache lifetime, zero disables the cache
	RatePerSecond float64       // outbound provider calls, zero means unlimited
	Timeout       time.Duration // per provider call, zero means none
	Metrics       *metrics.Recorder
	Logger        zerolog.Logger
	Now           func() time.Time
}

type cacheKey struct {
	instrument string
	res        model.Resolution
}

// requested is the count the entry was loaded for. Providers may return
// fewer candles than asked, so hits are decided on it rather than len(candles).
type cacheEntry struct {
	candles   []model.Candle
	requested int
	fetchedAt time.Time
}

// Manager fetches candles through a Provider with a short-lived cache, request
// coalescing and a rate limit. It is safe for concurrent use. Returned candle
// slices are shared between callers and must not be modified.
type Manager struct {
	provider Provider
	bars     int
	ttl      time.Duration
	timeout  time.Duration
	limiter  *rate.Limiter
	metrics  *metrics.Recorder
	log      zerolog.Logger
	now      func() time.Time

	group singleflight.Group
	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

// NewManager creates a Manager around p.
func NewManager(p Provider, opts Options) *Manager {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.Bars <= 0 {
		opts.Bars = 400
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		provider: p,
		bars:     opts.Bars,
		ttl:      opts.TTL,
		timeout:  opts.Timeout,
		limiter:  rate.NewLimiter(limit, 1),
		metrics:  opts.Metrics,
		log:      opts.Logger,
		now:      opts.Now,
		cache:    make(map[cacheKey]cacheEntry),
	}
}

// Provider returns the underlying provider name.
func (m *Manager) Provider() string { return m.provider.Name() }

// Fetch returns the configured number of completed candles as of asOf. A
// candle is completed once its period has fully elapsed; a zero asOf keeps
// every candle.
func (m *Manager) Fetch(ctx context.Context, instrument string, res model.Resolution, asOf time.Time) (model.Series, error) {
	return m.FetchCount(ctx, instrument, res, m.bars, asOf)
}

// FetchCount is Fetch with an explicit candle count.
func (m *Manager) FetchCount(ctx context.Context, instrument string, res model.Resolution, count int, asOf time.Time) (model.Series, error) {
	if count <= 0 {
		count = m.bars
	}
	candles, err := m.candles(ctx, instrument, res, count)
	if err != nil {
		return model.Series{}, err
	}
	return model.Series{
		Instrument: instrument,
		Resolution: res,
		Candles:    completed(candles, res.Duration(), asOf),
	}, nil
}

// Invalidate drops every cached series.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cache = make(map[cacheKey]cacheEntry)
	m.mu.Unlock()
}

func (m *Manager) candles(ctx context.Context, instrument string, res model.Resolution, count int) ([]model.Candle, error) {
	key := cacheKey{instrument: instrument, res: res}
	if c, ok := m.lookup(key, count); ok {
		m.metrics.RecordCacheHit()
		return c, nil
	}

	// The shared load outlives any single caller; each caller stops waiting
	// on its own ctx below.
	lctx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(fmt.Sprintf("%s|%s#%d", instrument, res, count), func() (interface{}, error) {
		if c, ok := m.lookup(key, count); ok {
			return c, nil
		}
		c, err := m.load(lctx, instrument, res, count)
		if err != nil {
			return nil, err
		}
		m.store(key, c, count)
		return tail(c, count), nil
	})

	select {
	case <-ctx.Done():
		return nil, &FetchError{Provider: m.provider.Name(), Instrument: instrument, Resolution: res, Err: ctx.Err()}
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			m.log.Debug().Str("instrument", instrument).Str("resolution", res.String()).Msg("coalesced fetch")
		}
		return r.Val.([]model.Candle), nil
	}
}

// load performs the outbound call, or builds a synthetic resolution from its
// base through the cache.
func (m *Manager) load(ctx context.Context, instrument string, res model.Resolution, count int) ([]model.Candle, error) {
	name := m.provider.Name()
	if m.provider.Supports(res) {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{Provider: name, Instrument: instrument, Resolution: res, Err: err}
		}
		cctx := ctx
		if m.timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, m.timeout)
			defer cancel()
		}
		start := m.now()
		c, err := m.provider.Candles(cctx, instrument, res, count)
		m.metrics.RecordLatency("provider_fetch", m.now().Sub(start).Seconds())
		if err != nil {
			m.metrics.RecordProviderCall(name, "error")
			return nil, &FetchError{Provider: name, Instrument: instrument, Resolution: res, Err: err, Temporary: temporary(err)}
		}
		m.metrics.RecordProviderCall(name, "ok")
		m.log.Debug().Str("instrument", instrument).Str("resolution", res.String()).Int("candles", len(c)).Msg("fetched candles")
		return normalize(c), nil
	}

	if base, factor, ok := res.Base(); ok && m.provider.Supports(base) {
		bc, err := m.candles(ctx, instrument, base, count*factor+factor)
		if err != nil {
			return nil, err
		}
		return model.Resample(bc, res.Duration()), nil
	}

	return nil, &FetchError{Provider: name, Instrument: instrument, Resolution: res, Err: ErrUnsupportedResolution}
}

func (m *Manager) lookup(key cacheKey, count int) ([]model.Candle, bool) {
	if m.ttl <= 0 {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cache[key]
	if !ok || m.now().Sub(e.fetchedAt) >= m.ttl || count > e.requested {
		return nil, false
	}
	return tail(e.candles, count), true
}

func (m *Manager) store(key cacheKey, c []model.Candle, requested int) {
	if m.ttl <= 0 {
		return
	}
	m.mu.Lock()
	m.cache[key] = cacheEntry{candles: c, requested: requested, fetchedAt: m.now()}
	m.mu.Unlock()
}

func tail(c []model.Candle, n int) []model.Candle {
	if len(c) > n {
		return c[len(c)-n:]
	}
	return c
}

// normalize sorts candles and keeps the last of any duplicate open time so
// OpenTime is strictly increasing.
func normalize(c []model.Candle) []model.Candle {
	sort.SliceStable(c, func(i, j int) bool { return c[i].OpenTime.Before(c[j].OpenTime) })
	out := c[:0]
	for _, x := range c {
		if n := len(out); n > 0 && out[n-1].OpenTime.Equal(x.OpenTime) {
			out[n-1] = x
			continue
		}
		out = append(out, x)
	}
	return out
}

// completed drops trailing candles whose period has not elapsed at asOf.
func completed(c []model.Candle, d time.Duration, asOf time.Time) []model.Candle {
	if asOf.IsZero() {
		return c
	}
	n := len(c)
	for n > 0 && c[n-1].OpenTime.Add(d).After(asOf) {
		n--
	}
	return c[:n]
}
