package main

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/scheduler"

	"github.com/rs/zerolog"
)

// controller serves the operator surfaces: SIGHUP, Redis, HTTP and Telegram.
type controller struct {
	path    string
	sched   *scheduler.Scheduler
	fetcher *collector.Manager
	log     zerolog.Logger

	// mu serialises configuration changes from different surfaces.
	mu sync.Mutex
}

// Reload re-reads the config file. Provider settings need a restart.
func (c *controller) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg, err := config.Load(c.path)
	if err != nil {
		return err
	}
	if err := c.sched.Reload(cfg); err != nil {
		return err
	}
	if c.fetcher != nil {
		c.fetcher.Invalidate()
	}
	c.log.Info().Str("config", c.path).Msg("configuration reloaded from file")
	return nil
}

// ApplyUpdate merges u into the running configuration.
func (c *controller) ApplyUpdate(u config.Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.sched.Config()
	next, err := cur.WithUpdate(u)
	if err != nil {
		return err
	}
	return c.sched.Reload(next)
}

func (c *controller) Pause()                   { c.sched.Pause() }
func (c *controller) Resume()                  { c.sched.Resume() }
func (c *controller) Status() scheduler.Health { return c.sched.Health() }

func (c *controller) ResetCooldown(ctx context.Context) error {
	return c.sched.ResetCooldown(ctx)
}

// HandleCommand answers a chat command.
func (c *controller) HandleCommand(ctx context.Context, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd := strings.ToLower(fields[0])
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/status":
		return scheduler.FormatStatus(c.Status())
	case "/pause":
		c.Pause()
		return "⏸ Signal checks paused. Send /resume to continue."
	case "/resume":
		c.Resume()
		return "▶️ Signal checks resumed."
	case "/reload":
		if err := c.Reload(); err != nil {
			return fmt.Sprintf("❌ Reload failed: %s", html.EscapeString(err.Error()))
		}
		return "🔄 Configuration reloaded."
	case "/reset":
		if err := c.ResetCooldown(ctx); err != nil {
			return fmt.Sprintf("❌ Reset failed: %s", html.EscapeString(err.Error()))
		}
		return "🧹 Cooldown history cleared."
	case "/help", "/start":
		return "Commands:\n/status - agent health\n/pause - stop signal checks\n/resume - restart signal checks\n/reload - reload the config file\n/reset - clear cooldown history"
	default:
		return "Unknown command. Send /help for the list."
	}
}
