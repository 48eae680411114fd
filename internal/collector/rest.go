package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"SignalSentinel/internal/model"
)

// RESTProvider implements Provider against a generic JSON bars endpoint:
//
//	GET {base}/api/v1/bars?symbol=EURUSD&resolution=1h&limit=400
//
// returning [{"timestamp":1700000000,"open":...,"high":...,"low":...,"close":...,"volume":...}].
type RESTProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewRESTProvider creates a new provider. apiKey is sent as a bearer token when set.
func NewRESTProvider(baseURL, apiKey string, client *http.Client) *RESTProvider {
	return &RESTProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  client,
	}
}

func (p *RESTProvider) Name() string { return "rest" }

func (p *RESTProvider) Supports(res model.Resolution) bool { return res.Valid() }

// restBar is the expected JSON shape from the bars endpoint.
type restBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func (p *RESTProvider) Candles(ctx context.Context, instrument string, res model.Resolution, count int) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", instrument)
	q.Set("resolution", res.String())
	q.Set("limit", strconv.Itoa(count))
	endpoint := fmt.Sprintf("%s/api/v1/bars?%s", p.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch bars: %w", &statusError{Code: resp.StatusCode, Body: string(body)})
	}
	var bars []restBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}
	candles := make([]model.Candle, len(bars))
	for i, b := range bars {
		candles[i] = model.Candle{
			OpenTime: time.Unix(b.Timestamp, 0).UTC(),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			Volume:   b.Volume,
		}
	}
	// Ensure chronological order
	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	return candles, nil
}
