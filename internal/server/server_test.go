package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"SignalSentinel/internal/config"
	"SignalSentinel/internal/metrics"
	"SignalSentinel/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type fakeController struct {
	status  string
	paused  bool
	reloads int
	updates []config.Update
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
	return scheduler.Health{Status: c.status, Paused: c.paused}
}

func (c *fakeController) ResetCooldown(context.Context) error { c.resets++; return c.err }

func newTestServer(ctl *fakeController) (*Server, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return New(":0", ctl, reg, zerolog.Nop()), reg
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	ctl := &fakeController{status: "healthy"}
	s, _ := newTestServer(ctl)

	rec := do(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var resp struct {
		Status int              `json:"status"`
		Data   scheduler.Health `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Status != "healthy" {
		t.Errorf("body = %s", rec.Body.String())
	}

	ctl.status = "degraded"
	if rec := do(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded code = %d", rec.Code)
	}
}

func TestControlRoutes(t *testing.T) {
	ctl := &fakeController{status: "healthy"}
	s, _ := newTestServer(ctl)

	if rec := do(t, s, http.MethodPost, "/pause", ""); rec.Code != http.StatusOK || !ctl.paused {
		t.Errorf("pause: code=%d paused=%v", rec.Code, ctl.paused)
	}
	if rec := do(t, s, http.MethodPost, "/resume", ""); rec.Code != http.StatusOK || ctl.paused {
		t.Errorf("resume: code=%d paused=%v", rec.Code, ctl.paused)
	}
	if rec := do(t, s, http.MethodPost, "/reload", ""); rec.Code != http.StatusOK || ctl.reloads != 1 {
		t.Errorf("reload: code=%d reloads=%d", rec.Code, ctl.reloads)
	}

	ctl.err = fmt.Errorf("%w: bad threshold", config.ErrInvalid)
	if rec := do(t, s, http.MethodPost, "/reload", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid reload code = %d", rec.Code)
	}
}

func TestCooldownReset(t *testing.T) {
	ctl := &fakeController{status: "healthy"}
	s, _ := newTestServer(ctl)

	if rec := do(t, s, http.MethodPost, "/cooldown/reset", ""); rec.Code != http.StatusOK || ctl.resets != 1 {
		t.Errorf("reset: code=%d resets=%d", rec.Code, ctl.resets)
	}
	if rec := do(t, s, http.MethodGet, "/cooldown/reset", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET reset code = %d", rec.Code)
	}

	ctl.err = errors.New("database is locked")
	if rec := do(t, s, http.MethodPost, "/cooldown/reset", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("failed reset code = %d", rec.Code)
	}
}

func TestConfigUpdate(t *testing.T) {
	ctl := &fakeController{status: "healthy"}
	s, _ := newTestServer(ctl)

	rec := do(t, s, http.MethodPatch, "/config", `{"rsi_overbought": 75}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body=%s", rec.Code, rec.Body.String())
	}
	if len(ctl.updates) != 1 || ctl.updates[0].RSIOverbought == nil || *ctl.updates[0].RSIOverbought != 75 {
		t.Errorf("updates = %+v", ctl.updates)
	}

	if rec := do(t, s, http.MethodPatch, "/config", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty update code = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPatch, "/config", `{"rsi_overbought": "x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed update code = %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	ctl := &fakeController{status: "healthy"}
	s, reg := newTestServer(ctl)
	m := metrics.New(reg)
	m.RecordCycle("1h", "ok")

	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `signal_sentinel_cycles_total{resolution="1h",result="ok"} 1`) {
		t.Errorf("metrics output missing cycle counter:\n%s", rec.Body.String())
	}
}
