package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"SignalSentinel/internal/config"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/scheduler"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type published struct {
	channel string
	payload []byte
}

func newTestBus() (*Bus, *[]published) {
	var out []published
	b := New(nil, "forex", zerolog.Nop())
	b.publish = func(_ context.Context, channel string, payload []byte) error {
		out = append(out, published{channel, payload})
		return nil
	}
	return b, &out
}

type fakeController struct {
	reloads int
	updates []config.Update
	paused  bool
	resets  int
	err     error
}

func (c *fakeController) Reload() error { c.reloads++; return c.err }

func (c *fakeController) ApplyUpdate(u config.Update) error {
	c.updates = append(c.updates, u)
	return c.err
}

func (c *fakeController) Pause()  { c.paused = true }
func (c *fakeController) Resume() { c.paused = false }

func (c *fakeController) Status() scheduler.Health {
	return scheduler.Health{Status: "healthy", Paused: c.paused, Jobs: 2}
}

func (c *fakeController) ResetCooldown(context.Context) error { c.resets++; return c.err }

func TestPublishEvent(t *testing.T) {
	b, out := newTestBus()
	at := time.Date(2024, 4, 3, 10, 0, 0, 0, time.UTC)
	ev, err := model.NewEvent("EURUSD", model.Res4h, at, model.Critical,
		model.TrendCross{Direction: model.Bullish, FastMA: 1.1, SlowMA: 1.09, ADX: 35})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.PublishEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(*out) != 1 || (*out)[0].channel != "forex:events" {
		t.Fatalf("published = %+v", *out)
	}
	var m EventMessage
	if err := json.Unmarshal((*out)[0].payload, &m); err != nil {
		t.Fatal(err)
	}
	if m.Kind != "trend" || m.Importance != 2 || m.Resolution != "4h" || m.CooldownKey != "EURUSD|4h|trend" || !m.DetectedAt.Equal(at) {
		t.Errorf("message = %+v", m)
	}
}

func TestHandle_Commands(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBus()
	ctl := &fakeController{}

	b.handle(ctx, ctl, &redis.Message{Channel: "forex:commands", Payload: " PAUSE "})
	if !ctl.paused {
		t.Error("pause not applied")
	}
	b.handle(ctx, ctl, &redis.Message{Channel: "forex:commands", Payload: "status"})
	b.handle(ctx, ctl, &redis.Message{Channel: "forex:commands", Payload: "resume"})
	b.handle(ctx, ctl, &redis.Message{Channel: "forex:commands", Payload: "reload"})
	b.handle(ctx, ctl, &redis.Message{Channel: "forex:commands", Payload: "reset"})
	b.handle(ctx, ctl, &redis.Message{Channel: "forex:commands", Payload: "explode"})

	if ctl.paused || ctl.reloads != 1 || ctl.resets != 1 {
		t.Errorf("controller = %+v", ctl)
	}
	var types []string
	for _, p := range *out {
		if p.channel != "forex:status" {
			t.Errorf("reply on %s", p.channel)
		}
		var m StatusMessage
		if err := json.Unmarshal(p.payload, &m); err != nil {
			t.Fatal(err)
		}
		types = append(types, m.Type)
		if m.Type == "health" && (m.Health == nil || !m.Health.Paused) {
			t.Errorf("health reply = %+v", m.Health)
		}
	}
	want := []string{"pause", "health", "resume", "reload", "reset"}
	if len(types) != len(want) {
		t.Fatalf("replies = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("reply %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestHandle_ConfigUpdate(t *testing.T) {
	ctx := context.Background()
	b, out := newTestBus()
	ctl := &fakeController{}

	b.handle(ctx, ctl, &redis.Message{Channel: "forex:config", Payload: `{"adx_threshold": 28, "instruments": ["EURUSD"]}`})
	if len(ctl.updates) != 1 || ctl.updates[0].ADXThreshold == nil || *ctl.updates[0].ADXThreshold != 28 {
		t.Fatalf("updates = %+v", ctl.updates)
	}

	b.handle(ctx, ctl, &redis.Message{Channel: "forex:config", Payload: `{}`})
	b.handle(ctx, ctl, &redis.Message{Channel: "forex:config", Payload: `not json`})
	if len(ctl.updates) != 1 {
		t.Error("empty or invalid updates must not reach the controller")
	}

	ctl.err = errors.New("invalid")
	b.handle(ctx, ctl, &redis.Message{Channel: "forex:config", Payload: `{"cooldown_minutes": 5}`})

	var last StatusMessage
	if err := json.Unmarshal((*out)[len(*out)-1].payload, &last); err != nil {
		t.Fatal(err)
	}
	if last.Type != "config" || last.Error != "invalid" {
		t.Errorf("rejection reply = %+v", last)
	}
}
