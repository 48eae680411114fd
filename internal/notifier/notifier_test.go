package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"SignalSentinel/internal/model"

	"github.com/rs/zerolog"
)

func newTestNotifier(srv *httptest.Server) *TelegramNotifier {
	n := NewTelegramNotifier("TOKEN", "42", "", zerolog.Nop())
	n.BaseURL = srv.URL
	n.Client = srv.Client()
	return n
}

func TestTelegramSend(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Error(err)
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	if err := newTestNotifier(srv).Send(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if payload["chat_id"] != "42" || payload["text"] != "hello" || payload["parse_mode"] != "HTML" {
		t.Errorf("payload = %v", payload)
	}
}

func TestTelegramSend_ErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		temporary bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusTooManyRequests, true},
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))
		err := newTestNotifier(srv).Send(context.Background(), "x")
		srv.Close()

		var ne *NotificationError
		if !errors.As(err, &ne) {
			t.Fatalf("status %d: expected NotificationError, got %v", tt.status, err)
		}
		if ne.Temporary != tt.temporary {
			t.Errorf("status %d: temporary = %v, want %v", tt.status, ne.Temporary, tt.temporary)
		}
	}
}

func TestFormatEvent(t *testing.T) {
	ev, err := model.NewEvent("EUR<USD>", model.Res4h, time.Now(), model.Normal,
		model.RSILevel{Zone: model.Overbought, RSI: 75, Threshold: 70})
	if err != nil {
		t.Fatal(err)
	}
	msg := FormatEvent(ev)
	if !strings.HasSuffix(msg, "(TF: 4h)") {
		t.Errorf("missing resolution tag: %q", msg)
	}
	if strings.Contains(msg, "<USD>") || !strings.Contains(msg, "&lt;USD&gt;") {
		t.Errorf("message not escaped: %q", msg)
	}
	if strings.Contains(msg, "[!]") {
		t.Error("normal event should not be flagged")
	}

	crit, _ := model.NewEvent("EURUSD", model.Res1h, time.Now(), model.Critical,
		model.PivotTouch{Level: model.LevelP, Price: 1.1, Close: 1.1, DistancePct: 0})
	if !strings.Contains(FormatEvent(crit), "[!]") {
		t.Error("critical event should be flagged")
	}
}

func TestStartPolling_DispatchesCommands(t *testing.T) {
	var polls atomic.Int32
	replies := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if polls.Add(1) == 1 {
				fmt.Fprint(w, `{"ok":true,"result":[
					{"update_id":7,"message":{"text":" /status ","chat":{"id":42}}},
					{"update_id":8,"message":{"text":"/pause","chat":{"id":99}}}]}`)
				return
			}
			if got := r.URL.Query().Get("offset"); got != "9" {
				t.Errorf("offset = %s, want 9", got)
			}
			fmt.Fprint(w, `{"ok":true,"result":[]}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var p map[string]string
			json.NewDecoder(r.Body).Decode(&p)
			replies <- p["text"]
			fmt.Fprint(w, `{"ok":true}`)
		}
	}))
	defer srv.Close()

	n := newTestNotifier(srv)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var handled []string
	go func() {
		n.StartPolling(ctx, func(_ context.Context, cmd string) string {
			handled = append(handled, cmd)
			return "ok: " + cmd
		})
		close(done)
	}()

	select {
	case reply := <-replies:
		if reply != "ok: /status" {
			t.Errorf("reply = %q", reply)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reply sent")
	}
	cancel()
	<-done
	if len(handled) != 1 {
		t.Errorf("handled = %v, commands from other chats must be ignored", handled)
	}
}
