package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"SignalSentinel/internal/model"
)

// BinanceProvider implements Provider using the public Binance klines endpoint.
type BinanceProvider struct {
	BaseURL string
	Client  *http.Client
}

// NewBinanceProvider creates a provider against api.binance.com.
func NewBinanceProvider(client *http.Client) *BinanceProvider {
	return &BinanceProvider{BaseURL: "https://api.binance.com", Client: client}
}

func (p *BinanceProvider) Name() string { return "binance" }

const binanceMaxLimit = 1000

var binanceIntervals = map[model.Resolution]string{
	model.Res1m:  "1m",
	model.Res5m:  "5m",
	model.Res15m: "15m",
	model.Res30m: "30m",
	model.Res1h:  "1h",
	model.Res4h:  "4h",
	model.Res1d:  "1d",
}

func (p *BinanceProvider) Supports(res model.Resolution) bool {
	_, ok := binanceIntervals[res]
	return ok
}

// Candles pages backwards with endTime until count candles are collected.
func (p *BinanceProvider) Candles(ctx context.Context, instrument string, res model.Resolution, count int) ([]model.Candle, error) {
	interval, ok := binanceIntervals[res]
	if !ok {
		return nil, fmt.Errorf("binance %s: %w", res, ErrUnsupportedResolution)
	}
	var out []model.Candle
	var endTime int64
	for len(out) < count {
		limit := count - len(out)
		if limit > binanceMaxLimit {
			limit = binanceMaxLimit
		}
		q := url.Values{}
		q.Set("symbol", instrument)
		q.Set("interval", interval)
		q.Set("limit", strconv.Itoa(limit))
		if endTime > 0 {
			q.Set("endTime", strconv.FormatInt(endTime, 10))
		}
		page, err := p.fetchPage(ctx, p.BaseURL+"/api/v3/klines?"+q.Encode())
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		out = append(page, out...)
		endTime = page[0].OpenTime.UnixMilli() - 1
		if len(page) < limit {
			break
		}
	}
	return out, nil
}

func (p *BinanceProvider) fetchPage(ctx context.Context, endpoint string) ([]model.Candle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("binance: %w", &statusError{Code: resp.StatusCode, Body: string(body)})
	}

	// Each kline is [openTime, "open", "high", "low", "close", "volume", closeTime, ...].
	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("binance decode: %w", err)
	}
	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("binance decode: short kline row")
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			return nil, fmt.Errorf("binance decode open time: %w", err)
		}
		var vals [5]float64
		for i := range vals {
			var s string
			if err := json.Unmarshal(row[i+1], &s); err != nil {
				return nil, fmt.Errorf("binance decode field %d: %w", i+1, err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("binance parse field %d: %w", i+1, err)
			}
			vals[i] = v
		}
		candles = append(candles, model.Candle{
			OpenTime: time.UnixMilli(openMs).UTC(),
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}
	return candles, nil
}
