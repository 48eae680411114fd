package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"SignalSentinel/internal/model"
)

// YahooProvider implements Provider using the Yahoo Finance chart API.
// Four-hour candles are not offered and are resampled from 60m by the Manager.
type YahooProvider struct {
	BaseURL   string
	Client    *http.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
	Now       func() time.Time
}

// NewYahooProvider creates a new Yahoo Finance provider.
func NewYahooProvider(client *http.Client) *YahooProvider {
	return &YahooProvider{
		BaseURL: "https://query1.finance.yahoo.com",
		Client:  client,
		SymbolMap: map[string]string{
			"XAUUSD": "GC=F",
			"XAGUSD": "SI=F",
			"SPX500": "^GSPC",
		},
		Now: time.Now,
	}
}

func (p *YahooProvider) Name() string { return "yahoo" }

var yahooIntervals = map[model.Resolution]struct {
	interval string
	maxSpan  time.Duration
}{
	model.Res1m:  {"1m", 7 * 24 * time.Hour},
	model.Res5m:  {"5m", 59 * 24 * time.Hour},
	model.Res15m: {"15m", 59 * 24 * time.Hour},
	model.Res30m: {"30m", 59 * 24 * time.Hour},
	model.Res1h:  {"60m", 729 * 24 * time.Hour},
	model.Res1d:  {"1d", 20 * 365 * 24 * time.Hour},
}

func (p *YahooProvider) Supports(res model.Resolution) bool {
	_, ok := yahooIntervals[res]
	return ok
}

// yahooSymbol maps plain six-letter currency pairs to Yahoo's "=X" tickers.
func (p *YahooProvider) yahooSymbol(symbol string) string {
	if mapped, ok := p.SymbolMap[symbol]; ok {
		return mapped
	}
	if len(symbol) == 6 && strings.ToUpper(symbol) == symbol && !strings.ContainsAny(symbol, "=^.-") {
		return symbol + "=X"
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func at(vs []interface{}, i int) interface{} {
	if i < len(vs) {
		return vs[i]
	}
	return nil
}

func (p *YahooProvider) Candles(ctx context.Context, instrument string, res model.Resolution, count int) ([]model.Candle, error) {
	iv, ok := yahooIntervals[res]
	if !ok {
		return nil, fmt.Errorf("yahoo %s: %w", res, ErrUnsupportedResolution)
	}
	// Weekends and holidays leave gaps, so ask for extra calendar time.
	span := time.Duration(count) * res.Duration() * 3 / 2
	if span < 5*24*time.Hour {
		span = 5 * 24 * time.Hour
	}
	if span > iv.maxSpan {
		span = iv.maxSpan
	}
	now := p.Now()
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&period1=%d&period2=%d",
		p.BaseURL, url.PathEscape(p.yahooSymbol(instrument)), iv.interval, now.Add(-span).Unix(), now.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: %w", &statusError{Code: resp.StatusCode, Body: string(body)})
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned")
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	candles := make([]model.Candle, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		o := toFloat(at(quote.Open, i))
		h := toFloat(at(quote.High, i))
		l := toFloat(at(quote.Low, i))
		c := toFloat(at(quote.Close, i))
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // skip null bars (holidays etc.)
		}
		candles = append(candles, model.Candle{
			OpenTime: time.Unix(ts, 0).UTC(),
			Open:     o,
			High:     h,
			Low:      l,
			Close:    c,
			Volume:   toFloat(at(quote.Volume, i)),
		})
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return candles, nil
}
