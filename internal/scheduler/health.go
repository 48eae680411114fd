package scheduler

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// degradedAfter consecutive failed cycles flips the status to degraded.
const degradedAfter = 10

// Health is a point-in-time view of the scheduler.
type Health struct {
	Status              string     `json:"status"`
	StartedAt           time.Time  `json:"started_at"`
	Uptime              string     `json:"uptime"`
	LastSuccessfulCycle *time.Time `json:"last_successful_cycle,omitempty"`
	Cycles              int64      `json:"cycles"`
	CycleErrors         int64      `json:"cycle_errors"`
	EventsDetected      int64      `json:"events_detected"`
	Notified            int64      `json:"notified"`
	Suppressed          int64      `json:"suppressed"`
	Failed              int64      `json:"failed"`
	Paused              bool       `json:"paused"`
	Instruments         []string   `json:"instruments"`
	Jobs                int        `json:"jobs"`
}

// Healthy reports whether the status is "healthy".
func (h Health) Healthy() bool { return h.Status == "healthy" }

type healthState struct {
	mu                sync.Mutex
	startedAt         time.Time
	lastSuccess       time.Time
	cycles            int64
	cycleErrors       int64
	consecutiveErrors int
	eventsDetected    int64
	notifiedCount     int64
	suppressedCount   int64
	failedCount       int64
}

func (h *healthState) cycleSucceeded(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cycles++
	h.consecutiveErrors = 0
	h.lastSuccess = at
}

func (h *healthState) cycleFailed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cycles++
	h.cycleErrors++
	h.consecutiveErrors++
}

func (h *healthState) detected(n int) {
	h.mu.Lock()
	h.eventsDetected += int64(n)
	h.mu.Unlock()
}

func (h *healthState) notified() {
	h.mu.Lock()
	h.notifiedCount++
	h.mu.Unlock()
}

func (h *healthState) suppressed() {
	h.mu.Lock()
	h.suppressedCount++
	h.mu.Unlock()
}

func (h *healthState) failed() {
	h.mu.Lock()
	h.failedCount++
	h.mu.Unlock()
}

// Health returns the current health snapshot.
func (s *Scheduler) Health() Health {
	cfg, _ := s.snapshot()
	now := s.now()

	h := &s.health
	h.mu.Lock()
	defer h.mu.Unlock()

	out := Health{
		Status:         "healthy",
		StartedAt:      h.startedAt,
		Uptime:         now.Sub(h.startedAt).Truncate(time.Second).String(),
		Cycles:         h.cycles,
		CycleErrors:    h.cycleErrors,
		EventsDetected: h.eventsDetected,
		Notified:       h.notifiedCount,
		Suppressed:     h.suppressedCount,
		Failed:         h.failedCount,
		Paused:         s.paused.Load(),
		Instruments:    append([]string(nil), cfg.Instruments...),
		Jobs:           len(cfg.Instruments) * len(cfg.Jobs),
	}
	if !h.lastSuccess.IsZero() {
		t := h.lastSuccess
		out.LastSuccessfulCycle = &t
	}
	if h.consecutiveErrors >= degradedAfter {
		out.Status = "degraded"
	}
	return out
}

// FormatStatus renders h as a short chat reply.
func FormatStatus(h Health) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Status:</b> %s", h.Status)
	if h.Paused {
		b.WriteString(" (paused)")
	}
	fmt.Fprintf(&b, "\nUptime: %s\nInstruments: %s (%d jobs)", h.Uptime, strings.Join(h.Instruments, ", "), h.Jobs)
	fmt.Fprintf(&b, "\nCycles: %d, errors: %d", h.Cycles, h.CycleErrors)
	fmt.Fprintf(&b, "\nEvents: %d detected, %d notified, %d suppressed, %d failed",
		h.EventsDetected, h.Notified, h.Suppressed, h.Failed)
	if h.LastSuccessfulCycle != nil {
		fmt.Fprintf(&b, "\nLast cycle: %s UTC", h.LastSuccessfulCycle.UTC().Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
