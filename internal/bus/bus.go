package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"SignalSentinel/internal/config"
	"SignalSentinel/internal/logger"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/scheduler"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Controller is the part of the agent the command channels can drive.
type Controller interface {
	Reload() error
	ApplyUpdate(u config.Update) error
	Pause()
	Resume()
	Status() scheduler.Health
	ResetCooldown(ctx context.Context) error
}

// EventMessage is the JSON published for every notified event.
type EventMessage struct {
	Instrument  string    `json:"instrument"`
	Resolution  string    `json:"resolution"`
	Kind        string    `json:"kind"`
	Importance  int       `json:"importance"`
	DetectedAt  time.Time `json:"detected_at"`
	Message     string    `json:"message"`
	CooldownKey string    `json:"cooldown_key"`
}

// StatusMessage is published on the status channel, either after a cycle or
// in reply to a status command.
type StatusMessage struct {
	Type   string                 `json:"type"`
	Cycle  *scheduler.CycleStatus `json:"cycle,omitempty"`
	Health *scheduler.Health      `json:"health,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// NewClient connects to Redis and checks the connection.
func NewClient(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Bus publishes agent output to Redis and consumes operator commands.
type Bus struct {
	client  *redis.Client
	prefix  string
	log     zerolog.Logger
	publish func(ctx context.Context, channel string, payload []byte) error
}

func New(client *redis.Client, prefix string, log zerolog.Logger) *Bus {
	b := &Bus{client: client, prefix: prefix, log: logger.Component(log, "bus")}
	b.publish = func(ctx context.Context, channel string, payload []byte) error {
		return b.client.Publish(ctx, channel, payload).Err()
	}
	return b
}

// Channel returns the fully qualified channel name, e.g. "forex:events".
func (b *Bus) Channel(name string) string { return b.prefix + ":" + name }

func (b *Bus) PublishEvent(ctx context.Context, ev model.Event) error {
	return b.send(ctx, b.Channel("events"), EventMessage{
		Instrument:  ev.Instrument(),
		Resolution:  ev.Resolution().String(),
		Kind:        string(ev.Kind()),
		Importance:  int(ev.Importance()),
		DetectedAt:  ev.DetectedAt(),
		Message:     ev.Message(),
		CooldownKey: ev.CooldownKey(),
	})
}

func (b *Bus) PublishCycle(ctx context.Context, st scheduler.CycleStatus) error {
	return b.send(ctx, b.Channel("status"), StatusMessage{Type: "cycle", Cycle: &st})
}

func (b *Bus) send(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", channel, err)
	}
	if err := b.publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Run subscribes to the command and config channels and dispatches messages
// to ctl until ctx is cancelled.
func (b *Bus) Run(ctx context.Context, ctl Controller) error {
	sub := b.client.Subscribe(ctx, b.Channel("commands"), b.Channel("config"))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	b.log.Info().Str("commands", b.Channel("commands")).Str("config", b.Channel("config")).Msg("listening")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("bus stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(ctx, ctl, msg)
		}
	}
}

func (b *Bus) handle(ctx context.Context, ctl Controller, msg *redis.Message) {
	log := b.log.With().Str("channel", msg.Channel).Logger()

	switch msg.Channel {
	case b.Channel("config"):
		var u config.Update
		if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
			log.Warn().Err(err).Msg("invalid config update")
			b.reply(ctx, "config", err)
			return
		}
		if u.Empty() {
			log.Warn().Msg("empty config update ignored")
			return
		}
		err := ctl.ApplyUpdate(u)
		if err != nil {
			log.Error().Err(err).Msg("config update rejected")
		} else {
			log.Info().Msg("config update applied")
		}
		b.reply(ctx, "config", err)

	case b.Channel("commands"):
		cmd := strings.ToLower(strings.TrimSpace(msg.Payload))
		log.Info().Str("command", cmd).Msg("received command")
		switch cmd {
		case "reload":
			err := ctl.Reload()
			if err != nil {
				log.Error().Err(err).Msg("reload failed")
			}
			b.reply(ctx, "reload", err)
		case "pause":
			ctl.Pause()
			b.reply(ctx, "pause", nil)
		case "resume":
			ctl.Resume()
			b.reply(ctx, "resume", nil)
		case "reset":
			err := ctl.ResetCooldown(ctx)
			if err != nil {
				log.Error().Err(err).Msg("cooldown reset failed")
			}
			b.reply(ctx, "reset", err)
		case "status":
			h := ctl.Status()
			if err := b.send(ctx, b.Channel("status"), StatusMessage{Type: "health", Health: &h}); err != nil {
				log.Warn().Err(err).Msg("failed to publish status")
			}
		default:
			log.Warn().Str("command", cmd).Msg("unknown command")
		}
	}
}

// reply acknowledges a command on the status channel.
func (b *Bus) reply(ctx context.Context, op string, err error) {
	m := StatusMessage{Type: op}
	if err != nil {
		m.Error = err.Error()
	}
	if err := b.send(ctx, b.Channel("status"), m); err != nil {
		b.log.Warn().Err(err).Str("op", op).Msg("failed to publish reply")
	}
}
