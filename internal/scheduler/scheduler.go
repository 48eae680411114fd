package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"SignalSentinel/internal/analyzer"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/cooldown"
	"SignalSentinel/internal/indicator"
	"SignalSentinel/internal/logger"
	"SignalSentinel/internal/metrics"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/notifier"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrStopping is returned for cycles refused or cut short by Stop.
var ErrStopping = errors.New("scheduler stopping")

// Fetcher returns completed candles as of asOf.
type Fetcher interface {
	Fetch(ctx context.Context, instrument string, res model.Resolution, asOf time.Time) (model.Series, error)
}

// EventSink receives every notified event and the outcome of every cycle
// that ran.
type EventSink interface {
	PublishEvent(ctx context.Context, ev model.Event) error
	PublishCycle(ctx context.Context, st CycleStatus) error
}

// CycleStatus is the outcome of one job cycle.
type CycleStatus struct {
	Instrument string    `json:"instrument"`
	Resolution string    `json:"resolution"`
	OK         bool      `json:"ok"`
	Events     int       `json:"events"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Deps are the collaborators a Scheduler drives. Fetcher, Store and Notifier
// are required.
type Deps struct {
	Fetcher  Fetcher
	Store    cooldown.Store
	Notifier notifier.Notifier
	Sink     EventSink
	Metrics  *metrics.Recorder
	Logger   zerolog.Logger
	Now      func() time.Time
}

type jobKey struct {
	instrument string
	res        model.Resolution
}

type entry struct {
	id       cron.EntryID
	interval time.Duration
}

// Scheduler runs one recurring cycle per (instrument, resolution) job.
type Scheduler struct {
	cron     *cron.Cron
	fetcher  Fetcher
	store    cooldown.Store
	notifier notifier.Notifier
	sink     EventSink
	metrics  *metrics.Recorder
	log      zerolog.Logger
	now      func() time.Time
	detect   func(model.Series, analyzer.Thresholds) ([]model.Event, error)

	// mu guards the active configuration and the cron entries derived from it.
	mu        sync.RWMutex
	cfg       config.Config
	gate      *cooldown.Gate
	entries   map[jobKey]entry
	heartbeat cron.EntryID
	started   bool

	runCtx    context.Context
	cancelRun context.CancelFunc

	flight   sync.Mutex
	stopping bool
	inflight sync.WaitGroup
	drain    chan struct{}
	stopOnce sync.Once

	paused atomic.Bool
	health healthState
}

// New builds a Scheduler for cfg. Nothing runs until Start.
func New(cfg *config.Config, d Deps) (*Scheduler, error) {
	if d.Fetcher == nil || d.Store == nil || d.Notifier == nil {
		return nil, errors.New("scheduler: fetcher, store and notifier are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	log := logger.Component(d.Logger, "scheduler")
	cronLog := logger.Cron(log)

	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		fetcher:  d.Fetcher,
		store:    d.Store,
		notifier: d.Notifier,
		sink:     d.Sink,
		metrics:  d.Metrics,
		log:      log,
		now:      d.Now,
		detect:   enrichAndDetect,
		cfg:      *cfg,
		entries:  make(map[jobKey]entry),
		drain:    make(chan struct{}),
	}
	s.gate = s.newGate(cfg)
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())
	s.health.startedAt = s.now()
	return s, nil
}

func enrichAndDetect(series model.Series, th analyzer.Thresholds) ([]model.Event, error) {
	return analyzer.Detect(indicator.Enrich(series, indicator.DefaultParams()), th)
}

func (s *Scheduler) newGate(cfg *config.Config) *cooldown.Gate {
	return cooldown.NewGate(s.store, cfg.Cooldown(), model.Importance(cfg.CriticalImportanceFloor)).WithClock(s.now)
}

// Start registers every job and starts the cron loop. Cycles run under a
// context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx, s.cancelRun = context.WithCancel(ctx)
	if err := s.syncEntries(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.started = true
	runOnStart := s.cfg.RunOnStart
	jobs := len(s.entries)
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info().Int("jobs", jobs).Msg("scheduler started")

	if runOnStart {
		s.log.Info().Msg("run_on_start enabled, running every job now")
		go s.RunAll(s.runCtx)
	}
	return nil
}

// syncEntries reconciles cron entries with s.cfg. Jobs whose instrument,
// resolution and interval are unchanged keep their entry. Caller holds mu.
func (s *Scheduler) syncEntries() error {
	desired := make(map[jobKey]time.Duration)
	for _, inst := range s.cfg.Instruments {
		for _, j := range s.cfg.Jobs {
			desired[jobKey{instrument: inst, res: j.Res()}] = j.Interval()
		}
	}

	removed := 0
	for k, e := range s.entries {
		if iv, ok := desired[k]; ok && iv == e.interval {
			continue
		}
		s.cron.Remove(e.id)
		delete(s.entries, k)
		removed++
	}

	added := 0
	for k, iv := range desired {
		if _, ok := s.entries[k]; ok {
			continue
		}
		k := k
		id, err := s.cron.AddFunc("@every "+iv.String(), func() {
			_ = s.RunOnce(s.runContext(), k.instrument, k.res)
		})
		if err != nil {
			return fmt.Errorf("register job %s %s: %w", k.instrument, k.res, err)
		}
		s.entries[k] = entry{id: id, interval: iv}
		added++
	}

	switch {
	case s.cfg.HourlySummary && s.heartbeat == 0:
		id, err := s.cron.AddFunc("@every 5m", func() { s.Heartbeat(s.runContext()) })
		if err != nil {
			return fmt.Errorf("register heartbeat: %w", err)
		}
		s.heartbeat = id
	case !s.cfg.HourlySummary && s.heartbeat != 0:
		s.cron.Remove(s.heartbeat)
		s.heartbeat = 0
	}

	if added > 0 || removed > 0 {
		s.log.Info().Int("added", added).Int("removed", removed).Int("jobs", len(s.entries)).Msg("jobs synced")
	}
	return nil
}

func (s *Scheduler) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runCtx
}

// Reload atomically swaps the active configuration. The cooldown store is
// untouched and unchanged jobs keep running on their existing schedule.
func (s *Scheduler) Reload(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = *cfg
	s.gate = s.newGate(cfg)
	if s.started {
		if err := s.syncEntries(); err != nil {
			return err
		}
	}
	s.log.Info().
		Strs("instruments", cfg.Instruments).
		Int("resolutions", len(cfg.Jobs)).
		Float64("adx_threshold", cfg.ADXThreshold).
		Int("cooldown_minutes", cfg.CooldownMinutes).
		Msg("configuration reloaded")
	return nil
}

// Config returns a copy of the active configuration.
func (s *Scheduler) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Scheduler) snapshot() (config.Config, *cooldown.Gate) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.gate
}

// Pause makes subsequent cycles skip until Resume.
func (s *Scheduler) Pause() {
	if !s.paused.Swap(true) {
		s.log.Info().Msg("scheduler paused")
	}
}

func (s *Scheduler) Resume() {
	if s.paused.Swap(false) {
		s.log.Info().Msg("scheduler resumed")
	}
}

func (s *Scheduler) Paused() bool { return s.paused.Load() }

// ResetCooldown deletes every cooldown record, so the next occurrence of each
// event notifies again. Run metadata is kept.
func (s *Scheduler) ResetCooldown(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset cooldown: %w", err)
	}
	s.log.Info().Msg("cooldown records cleared")
	return nil
}

// RunAll runs one cycle of every configured job concurrently and waits for
// them. Failures are isolated per job and only logged.
func (s *Scheduler) RunAll(ctx context.Context) {
	cfg, _ := s.snapshot()
	var g errgroup.Group
	g.SetLimit(8)
	for _, inst := range cfg.Instruments {
		for _, j := range cfg.Jobs {
			inst, res := inst, j.Res()
			g.Go(func() error {
				_ = s.RunOnce(ctx, inst, res)
				return nil
			})
		}
	}
	_ = g.Wait()
}

// Stop stops scheduling, lets in-flight cycles finish their current step and
// waits for them until ctx is done. On expiry outstanding cycles are cancelled
// and ctx.Err() is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.flight.Lock()
		s.stopping = true
		close(s.drain)
		s.flight.Unlock()
	})

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.inflight.Wait()
		close(done)
	}()

	cancel := func() {
		s.mu.RLock()
		s.cancelRun()
		s.mu.RUnlock()
	}
	select {
	case <-done:
		cancel()
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		cancel()
		s.log.Warn().Msg("shutdown grace period expired, abandoning in-flight cycles")
		return ctx.Err()
	}
}

// enter registers an in-flight cycle unless Stop has begun.
func (s *Scheduler) enter() bool {
	s.flight.Lock()
	defer s.flight.Unlock()
	if s.stopping {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *Scheduler) draining() bool {
	select {
	case <-s.drain:
		return true
	default:
		return false
	}
}
