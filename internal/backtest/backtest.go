package backtest

import (
	"context"
	"sort"
	"time"

	"SignalSentinel/internal/analyzer"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/cooldown"
	"SignalSentinel/internal/indicator"
	"SignalSentinel/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Fetcher returns the count most recent completed candles as of asOf.
type Fetcher interface {
	FetchCount(ctx context.Context, instrument string, res model.Resolution, count int, asOf time.Time) (model.Series, error)
}

// Options controls a replay.
type Options struct {
	LookbackBars int
	Params       indicator.Params
	Thresholds   analyzer.Thresholds
	Cooldown     time.Duration
	Floor        model.Importance
}

// OptionsFrom derives replay options from the live configuration.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		LookbackBars: cfg.Backtest.LookbackBars,
		Params:       indicator.DefaultParams(),
		Thresholds: analyzer.Thresholds{
			ADX:               cfg.ADXThreshold,
			RSIOverbought:     cfg.RSIOverbought,
			RSIOversold:       cfg.RSIOversold,
			ContinuationBars:  cfg.TrendContinuationBars,
			StrongTrendFactor: cfg.StrongTrendFactor,
			PivotProximityPct: cfg.PivotProximityPct,
		},
		Cooldown: cfg.Cooldown(),
		Floor:    model.Importance(cfg.CriticalImportanceFloor),
	}
}

// Result is one detected event and whether the cooldown would have let it through.
type Result struct {
	Event       model.Event
	WouldNotify bool
}

// Report is the replay of one job.
type Report struct {
	Instrument string
	Resolution model.Resolution
	Bars       int
	From, To   time.Time
	Results    []Result
	Err        error
}

// Notified returns how many events would have been sent.
func (r Report) Notified() int {
	n := 0
	for _, res := range r.Results {
		if res.WouldNotify {
			n++
		}
	}
	return n
}

// ByKind counts detected events per kind.
func (r Report) ByKind() map[model.Kind]int {
	out := make(map[model.Kind]int)
	for _, res := range r.Results {
		out[res.Event.Kind()]++
	}
	return out
}

// Replay walks series forward one candle at a time, running the analyzer on
// every prefix once all indicators are defined. Cooldown is simulated in
// memory at each event's detection time.
func Replay(ctx context.Context, series model.Series, opts Options) (Report, error) {
	rep := Report{Instrument: series.Instrument, Resolution: series.Resolution, Bars: series.Len()}
	if series.Len() == 0 {
		return rep, nil
	}
	rep.From = series.Candles[0].OpenTime
	rep.To = series.Last().OpenTime

	es := indicator.Enrich(series, opts.Params)
	gate := cooldown.NewGate(cooldown.NewMemoryStore(), opts.Cooldown, opts.Floor)

	start := opts.Params.Warmup()
	if start < 2 {
		start = 2
	}
	for n := start; n <= es.Len(); n++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		events, err := analyzer.Detect(es.Truncate(n), opts.Thresholds)
		if err != nil {
			return rep, err
		}
		for _, ev := range events {
			at := ev.DetectedAt()
			ok, err := gate.AdmitAt(ctx, ev, at)
			if err != nil {
				return rep, err
			}
			if ok {
				if err := gate.RecordAt(ctx, ev, at); err != nil {
					return rep, err
				}
			}
			rep.Results = append(rep.Results, Result{Event: ev, WouldNotify: ok})
		}
	}
	return rep, nil
}

// Run replays every (instrument, resolution) job of cfg. A failing job is
// reported in its Report.Err and does not stop the others.
func Run(ctx context.Context, f Fetcher, cfg *config.Config, asOf time.Time, log zerolog.Logger) ([]Report, error) {
	opts := OptionsFrom(cfg)

	type job struct {
		instrument string
		res        model.Resolution
	}
	var jobs []job
	for _, inst := range cfg.Instruments {
		for _, j := range cfg.Jobs {
			jobs = append(jobs, job{inst, j.Res()})
		}
	}

	reports := make([]Report, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			jlog := log.With().Str("instrument", j.instrument).Str("resolution", j.res.String()).Logger()
			series, err := f.FetchCount(gctx, j.instrument, j.res, opts.LookbackBars, asOf)
			if err != nil {
				jlog.Error().Err(err).Msg("backtest fetch failed")
				reports[i] = Report{Instrument: j.instrument, Resolution: j.res, Err: err}
				return nil
			}
			rep, err := Replay(gctx, series, opts)
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				jlog.Error().Err(err).Msg("backtest replay failed")
				rep.Err = err
			}
			reports[i] = rep
			jlog.Info().
				Int("bars", rep.Bars).
				Int("events", len(rep.Results)).
				Int("would_notify", rep.Notified()).
				Msg("backtest complete")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// Rows flattens reports into export rows ordered by detection time.
func Rows(reports []Report) []Row {
	var rows []Row
	for _, rep := range reports {
		for _, res := range rep.Results {
			ev := res.Event
			rows = append(rows, Row{
				Instrument:   ev.Instrument(),
				Resolution:   ev.Resolution().String(),
				Kind:         string(ev.Kind()),
				Importance:   int32(ev.Importance()),
				DetectedAtMs: ev.DetectedAt().UnixMilli(),
				Message:      ev.Message(),
				WouldNotify:  res.WouldNotify,
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].DetectedAtMs < rows[j].DetectedAtMs })
	return rows
}
