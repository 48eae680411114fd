package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SignalSentinel/internal/backtest"
	"SignalSentinel/internal/bus"
	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/cooldown"
	"SignalSentinel/internal/logger"
	"SignalSentinel/internal/metrics"
	"SignalSentinel/internal/notifier"
	"SignalSentinel/internal/scheduler"
	"SignalSentinel/internal/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

func main() {
	defaultPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	cfgPath := flag.String("config", defaultPath, "path to the YAML config file")
	backtestMode := flag.Bool("backtest", false, "replay recent history, print a report and exit")
	out := flag.String("out", "", "write backtest events to this parquet file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("config", *cfgPath).Strs("instruments", cfg.Instruments).Int("resolutions", len(cfg.Jobs)).Msg("signal agent starting")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	provider, err := collector.NewProvider(cfg.Provider, cfg.Proxy)
	if err != nil {
		log.Fatal().Err(err).Msg("init market data provider")
	}
	fetcher := collector.NewManager(provider, collector.Options{
		Bars:          cfg.Provider.Bars,
		TTL:           cfg.Provider.CacheTTL,
		RatePerSecond: cfg.Provider.RateLimitPerSecond,
		Timeout:       cfg.Provider.Timeout,
		Metrics:       rec,
		Logger:        logger.Component(log, "collector"),
	})
	log.Info().Str("provider", fetcher.Provider()).Msg("market data provider ready")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *backtestMode {
		path := *out
		if path == "" {
			path = cfg.Backtest.Out
		}
		if err := runBacktest(ctx, fetcher, cfg, path, log); err != nil {
			log.Fatal().Err(err).Msg("backtest failed")
		}
		return
	}

	store, err := cooldown.OpenSQLite(cfg.SQLitePath, logger.Component(log, "cooldown"))
	if err != nil {
		log.Fatal().Err(err).Msg("open cooldown store")
	}
	defer store.Close()

	var (
		send notifier.Notifier
		tg   *notifier.TelegramNotifier
	)
	if cfg.Telegram.Enabled() {
		tg = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger.Component(log, "notifier"))
		send = tg
	} else {
		log.Warn().Msg("telegram not configured, notifications go to the log")
		send = notifier.NewLogNotifier(logger.Component(log, "notifier"))
	}

	deps := scheduler.Deps{
		Fetcher:  fetcher,
		Store:    store,
		Notifier: send,
		Metrics:  rec,
		Logger:   log,
	}

	var events *bus.Bus
	if cfg.Redis.Enabled {
		client, err := bus.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, continuing without it")
		} else {
			defer client.Close()
			events = bus.New(client, cfg.Redis.ChannelPrefix, log)
			deps.Sink = events
		}
	}

	sched, err := scheduler.New(cfg, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("init scheduler")
	}
	// Cycles get their own context so a shutdown signal lets them drain.
	if err := sched.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}

	ctl := &controller{path: *cfgPath, sched: sched, fetcher: fetcher, log: logger.Component(log, "control")}

	if events != nil {
		go func() {
			if err := events.Run(ctx, ctl); err != nil {
				log.Error().Err(err).Msg("redis command listener stopped")
			}
		}()
	}
	if tg != nil && cfg.Telegram.Commands {
		go tg.StartPolling(ctx, ctl.HandleCommand)
		log.Info().Msg("telegram command polling started")
	}

	var srv *server.Server
	if cfg.HTTP.Enabled {
		srv = server.New(cfg.HTTP.Addr, ctl, reg, log)
		srv.Start()
	}

	log.Info().Msg("signal agent running")

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-hup:
			if err := ctl.Reload(); err != nil {
				log.Error().Err(err).Msg("reload on SIGHUP failed, keeping current configuration")
			}
		}
	}

	log.Info().Msg("shutdown signal received, draining")
	grace := sched.Config().ShutdownGrace
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if srv != nil {
		if err := srv.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Dur("grace", grace).Msg("scheduler did not drain in time")
	}
	log.Info().Msg("signal agent stopped")
}

func runBacktest(ctx context.Context, fetcher *collector.Manager, cfg *config.Config, out string, log zerolog.Logger) error {
	log.Info().Int("lookback_bars", cfg.Backtest.LookbackBars).Msg("running backtest")
	reports, err := backtest.Run(ctx, fetcher, cfg, time.Now(), logger.Component(log, "backtest"))
	if err != nil {
		return err
	}

	for _, rep := range reports {
		if rep.Err != nil {
			log.Error().Err(rep.Err).Str("instrument", rep.Instrument).Str("resolution", rep.Resolution.String()).Msg("job skipped")
			continue
		}
		ev := log.Info().
			Str("instrument", rep.Instrument).
			Str("resolution", rep.Resolution.String()).
			Int("bars", rep.Bars).
			Time("from", rep.From).
			Time("to", rep.To).
			Int("events", len(rep.Results)).
			Int("would_notify", rep.Notified())
		for kind, n := range rep.ByKind() {
			ev = ev.Int(string(kind), n)
		}
		ev.Msg("backtest report")
	}

	if out == "" {
		return nil
	}
	if err := backtest.WriteParquet(out, reports); err != nil {
		return err
	}
	log.Info().Str("path", out).Msg("backtest events exported")
	return nil
}
