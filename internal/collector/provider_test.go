package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SignalSentinel/internal/model"
)

func TestYahooProvider_ParsesChart(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.URL.Query().Get("interval") != "60m" {
			t.Errorf("interval = %s", r.URL.Query().Get("interval"))
		}
		fmt.Fprint(w, `{"chart":{"result":[{"timestamp":[1704070800,1704067200,1704074400],
			"indicators":{"quote":[{"open":[1.2,1.1,null],"high":[1.25,1.15,null],"low":[1.19,1.09,null],
			"close":[1.22,1.12,null],"volume":[10,20,null]}]}}],"error":null}}`)
	}))
	defer srv.Close()

	p := NewYahooProvider(srv.Client())
	p.BaseURL = srv.URL
	candles, err := p.Candles(context.Background(), "EURUSD", model.Res1h, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(gotPath, "/EURUSD=X") {
		t.Errorf("path = %s, want forex ticker", gotPath)
	}
	if len(candles) != 2 {
		t.Fatalf("expected null bar skipped, got %d candles", len(candles))
	}
	if !candles[0].OpenTime.Before(candles[1].OpenTime) || candles[0].Close != 1.12 {
		t.Errorf("candles not sorted: %+v", candles)
	}
	if p.Supports(model.Res4h) {
		t.Error("yahoo has no native 4h")
	}
}

func TestBinanceProvider_ParsesKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("interval") != "4h" || r.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `[[1704067200000,"42000.1","42500.0","41900.0","42400.5","12.5",1704081599999,"0",1,"0","0","0"],
			[1704081600000,"42400.5","42600.0","42300.0","42550.0","8.25",1704095999999,"0",1,"0","0","0"]]`)
	}))
	defer srv.Close()

	p := NewBinanceProvider(srv.Client())
	p.BaseURL = srv.URL
	candles, err := p.Candles(context.Background(), "BTCUSDT", model.Res4h, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles", len(candles))
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !candles[0].OpenTime.Equal(want) || candles[0].High != 42500 || candles[1].Volume != 8.25 {
		t.Errorf("unexpected candles: %+v", candles)
	}
}

func TestRESTProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewRESTProvider(srv.URL, "key", srv.Client())
	_, err := p.Candles(context.Background(), "EURUSD", model.Res1h, 5)
	var se *statusError
	if !errors.As(err, &se) || se.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 status error, got %v", err)
	}
	if !temporary(err) {
		t.Error("429 should be retryable")
	}
}

func TestRESTProvider_ParsesBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("resolution") != "15m" || r.URL.Query().Get("limit") != "2" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `[{"timestamp":1704068100,"open":1,"high":2,"low":0.5,"close":1.5,"volume":3},
			{"timestamp":1704067200,"open":1,"high":2,"low":0.5,"close":1.2,"volume":3}]`)
	}))
	defer srv.Close()

	p := NewRESTProvider(srv.URL, "", srv.Client())
	candles, err := p.Candles(context.Background(), "EURUSD", model.Res15m, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 || candles[0].Close != 1.2 {
		t.Errorf("unexpected candles: %+v", candles)
	}
}
