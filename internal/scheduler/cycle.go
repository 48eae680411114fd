package scheduler

import (
	"context"
	"errors"
	"time"

	"SignalSentinel/internal/analyzer"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/cooldown"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/notifier"

	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

func thresholds(cfg config.Config) analyzer.Thresholds {
	return analyzer.Thresholds{
		ADX:               cfg.ADXThreshold,
		RSIOverbought:     cfg.RSIOverbought,
		RSIOversold:       cfg.RSIOversold,
		ContinuationBars:  cfg.TrendContinuationBars,
		StrongTrendFactor: cfg.StrongTrendFactor,
		PivotProximityPct: cfg.PivotProximityPct,
	}
}

// RunOnce runs a single fetch, analyze and dispatch cycle for one job. The
// error is also logged; callers driven by cron ignore it.
func (s *Scheduler) RunOnce(ctx context.Context, instrument string, res model.Resolution) error {
	if !s.enter() {
		return ErrStopping
	}
	defer s.inflight.Done()

	start := s.now()
	events, ran, err := s.cycle(ctx, instrument, res)
	s.metrics.RecordLatency("cycle", s.now().Sub(start).Seconds())
	if ran && !errors.Is(err, ErrStopping) {
		st := CycleStatus{
			Instrument: instrument,
			Resolution: res.String(),
			OK:         err == nil,
			Events:     events,
			At:         s.now().UTC(),
		}
		if err != nil {
			st.Error = err.Error()
		}
		s.publishStatus(ctx, st)
	}
	return err
}

// cycle reports how many events were detected and whether the job ran at all.
func (s *Scheduler) cycle(ctx context.Context, instrument string, res model.Resolution) (int, bool, error) {
	cfg, gate := s.snapshot()
	log := s.log.With().Str("instrument", instrument).Str("resolution", res.String()).Logger()

	if s.paused.Load() {
		log.Debug().Msg("paused, cycle skipped")
		s.metrics.RecordCycle(res.String(), "skipped")
		return 0, false, nil
	}
	if cfg.MarketHours == "forex" && !IsForexOpen(s.now()) {
		log.Debug().Msg("market closed, cycle skipped")
		s.metrics.RecordCycle(res.String(), "skipped")
		return 0, false, nil
	}

	var series model.Series
	err := s.retry(ctx, cfg.Retry, "fetch", log, func(ctx context.Context) error {
		var err error
		series, err = s.fetcher.Fetch(ctx, instrument, res, s.now())
		return err
	})
	if err != nil {
		return 0, true, s.fail(res, log, "fetch failed", err)
	}
	if s.draining() {
		return 0, true, ErrStopping
	}

	events, err := s.detect(series, thresholds(cfg))
	if err != nil {
		return 0, true, s.fail(res, log, "analysis failed", err)
	}
	s.health.detected(len(events))

	for _, ev := range events {
		if s.draining() {
			return len(events), true, ErrStopping
		}
		s.metrics.RecordEvent(string(ev.Kind()))
		s.dispatch(ctx, cfg, gate, ev, log)
	}

	s.succeed(ctx, instrument, res, len(events), log)
	return len(events), true, nil
}

// dispatch gates, sends and records one event. A record is written only after
// the message went out.
func (s *Scheduler) dispatch(ctx context.Context, cfg config.Config, gate *cooldown.Gate, ev model.Event, log zerolog.Logger) {
	kind := string(ev.Kind())
	elog := log.With().Str("kind", kind).Int("importance", int(ev.Importance())).Logger()

	ok, err := gate.Admit(ctx, ev)
	if err != nil {
		elog.Error().Err(err).Msg("cooldown lookup failed, event dropped")
		s.metrics.RecordNotification(kind, "failed")
		s.health.failed()
		return
	}
	if !ok {
		elog.Debug().Str("key", ev.CooldownKey()).Msg("event suppressed by cooldown")
		s.metrics.RecordNotification(kind, "suppressed")
		s.health.suppressed()
		return
	}

	text := notifier.FormatEvent(ev)
	err = s.retry(ctx, cfg.Retry, "notify", elog, func(ctx context.Context) error {
		return s.notifier.Send(ctx, text)
	})
	if err != nil {
		elog.Error().Err(err).Msg("notification failed, event dropped")
		s.metrics.RecordNotification(kind, "failed")
		s.health.failed()
		return
	}

	// The message is out; the record must land even if ctx is now cancelled.
	rctx := context.WithoutCancel(ctx)
	if err := gate.Record(rctx, ev); err != nil {
		elog.Error().Err(err).Msg("failed to record cooldown")
	}
	s.metrics.RecordNotification(kind, "sent")
	s.health.notified()
	elog.Info().Str("message", ev.Message()).Msg("event notified")

	if s.sink != nil {
		pctx, cancel := context.WithTimeout(rctx, publishTimeout)
		defer cancel()
		if err := s.sink.PublishEvent(pctx, ev); err != nil {
			elog.Warn().Err(err).Msg("failed to publish event")
		}
	}
}

func (s *Scheduler) publishStatus(ctx context.Context, st CycleStatus) {
	if s.sink == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.sink.PublishCycle(pctx, st); err != nil {
		s.log.Warn().Err(err).Str("instrument", st.Instrument).Msg("failed to publish cycle status")
	}
}

func (s *Scheduler) fail(res model.Resolution, log zerolog.Logger, msg string, err error) error {
	log.Error().Err(err).Msg(msg)
	s.metrics.RecordCycle(res.String(), "error")
	s.health.cycleFailed()
	return err
}

func (s *Scheduler) succeed(ctx context.Context, instrument string, res model.Resolution, events int, log zerolog.Logger) {
	now := s.now().UTC()
	s.metrics.RecordCycle(res.String(), "ok")
	s.health.cycleSucceeded(now)

	stamp := now.Format(time.RFC3339)
	mctx := context.WithoutCancel(ctx)
	if err := s.store.SetMeta(mctx, cooldown.MetaLastCycle, stamp); err != nil {
		log.Warn().Err(err).Msg("failed to persist run metadata")
	}
	if err := s.store.SetMeta(mctx, cooldown.MetaLastCycle+":"+instrument+"|"+res.String(), stamp); err != nil {
		log.Warn().Err(err).Msg("failed to persist run metadata")
	}
	log.Debug().Int("events", events).Msg("cycle complete")
}

// Heartbeat sends the hourly liveness message at most once per UTC hour.
func (s *Scheduler) Heartbeat(ctx context.Context) {
	if !s.enter() {
		return
	}
	defer s.inflight.Done()

	now := s.now().UTC()
	hour := now.Format("2006-01-02T15")
	last, _, err := s.store.Meta(ctx, cooldown.MetaLastHourly)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read heartbeat marker")
		return
	}
	if last == hour {
		return
	}

	cfg, _ := s.snapshot()
	text := notifier.FormatHeartbeat(now, len(cfg.Instruments)*len(cfg.Jobs), s.paused.Load())
	if err := s.retry(ctx, cfg.Retry, "notify", s.log, func(ctx context.Context) error {
		return s.notifier.Send(ctx, text)
	}); err != nil {
		s.log.Error().Err(err).Msg("heartbeat failed")
		return
	}
	if err := s.store.SetMeta(context.WithoutCancel(ctx), cooldown.MetaLastHourly, hour); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist heartbeat marker")
	}
}
