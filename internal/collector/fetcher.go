package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"SignalSentinel/internal/config"
	"SignalSentinel/internal/model"
)

// ErrUnsupportedResolution is returned when neither the provider nor a
// resample path can serve a resolution.
var ErrUnsupportedResolution = errors.New("unsupported resolution")

// Provider fetches raw candles from an external market-data source.
type Provider interface {
	Name() string
	// Supports reports whether res is served natively.
	Supports(res model.Resolution) bool
	// Candles returns up to count of the most recent candles, oldest first.
	Candles(ctx context.Context, instrument string, res model.Resolution, count int) ([]model.Candle, error)
}

// FetchError is the typed failure of a market-data request.
type FetchError struct {
	Provider   string
	Instrument string
	Resolution model.Resolution
	Err        error
	// Temporary is false for failures a retry cannot fix.
	Temporary bool
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s from %s: %v", e.Instrument, e.Resolution, e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// statusError carries an upstream HTTP status so FetchError can classify it.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d, body: %s", e.Code, e.Body)
}

func temporary(err error) bool {
	if errors.Is(err, ErrUnsupportedResolution) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

// NewProvider builds the provider named in cfg.
func NewProvider(cfg config.Provider, proxyURL string) (Provider, error) {
	client := newHTTPClient(proxyURL, cfg.Timeout)
	switch cfg.Name {
	case "", "yahoo":
		p := NewYahooProvider(client)
		if cfg.BaseURL != "" {
			p.BaseURL = cfg.BaseURL
		}
		return p, nil
	case "binance":
		p := NewBinanceProvider(client)
		if cfg.BaseURL != "" {
			p.BaseURL = cfg.BaseURL
		}
		return p, nil
	case "rest":
		return NewRESTProvider(cfg.BaseURL, cfg.APIKey, client), nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Name)
}

func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
