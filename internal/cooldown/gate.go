package cooldown

import (
	"context"
	"time"

	"SignalSentinel/internal/model"
)

// Gate decides whether an event may be dispatched. It holds no state of its
// own, so a reload can swap in a new Gate around the same Store.
type Gate struct {
	store  Store
	window time.Duration
	floor  model.Importance
	now    func() time.Time
}

// NewGate builds a Gate. Events with importance at or above floor always pass.
func NewGate(store Store, window time.Duration, floor model.Importance) *Gate {
	return &Gate{store: store, window: window, floor: floor, now: time.Now}
}

// WithClock returns a copy of g reading time from now.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	c := *g
	c.now = now
	return &c
}

func (g *Gate) Window() time.Duration   { return g.window }
func (g *Gate) Floor() model.Importance { return g.floor }

// Admit reports whether ev should be notified now.
func (g *Gate) Admit(ctx context.Context, ev model.Event) (bool, error) {
	return g.AdmitAt(ctx, ev, g.now())
}

// AdmitAt is Admit evaluated at an explicit instant.
func (g *Gate) AdmitAt(ctx context.Context, ev model.Event, now time.Time) (bool, error) {
	if ev.Importance() >= g.floor {
		return true, nil
	}
	last, ok, err := g.store.LastNotified(ctx, ev.CooldownKey())
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return now.Sub(last) >= g.window, nil
}

// Record marks ev as notified now. Call it only after a successful dispatch.
func (g *Gate) Record(ctx context.Context, ev model.Event) error {
	return g.RecordAt(ctx, ev, g.now())
}

// RecordAt is Record at an explicit instant.
func (g *Gate) RecordAt(ctx context.Context, ev model.Event, at time.Time) error {
	return g.store.Upsert(ctx, ev.CooldownKey(), at)
}
