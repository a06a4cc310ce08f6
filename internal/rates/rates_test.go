package rates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iwvelando/tax-atlas/internal/config"
	"github.com/iwvelando/tax-atlas/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNormalize(t *testing.T) {
	rates := Normalize(map[string]float64{
		"eur":  0.92,
		" GBP": 0.79,
		"BAD":  0,
		"NEG":  -3,
		"":     5,
	})

	assert.Equal(t, 0.92, rates["EUR"])
	assert.Equal(t, 0.79, rates["GBP"])
	assert.Equal(t, 1.0, rates["USD"])
	assert.NotContains(t, rates, "BAD")
	assert.NotContains(t, rates, "NEG")
	assert.Len(t, rates, 3)
}

func TestStaticProviderReturnsCopy(t *testing.T) {
	provider := NewStaticProvider(map[string]float64{"EUR": 1})

	first, err := provider.Rates(context.Background())
	require.NoError(t, err)
	first["EUR"] = 99

	second, err := provider.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, second["EUR"])
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantEUR float64
		wantErr bool
	}{
		{"yaml", "base: USD\nrates:\n  EUR: 0.9\n", 0.9, false},
		{"json", `{"base": "USD", "rates": {"EUR": 0.8}}`, 0.8, false},
		{"no base", "rates: {eur: 0.7}\n", 0.7, false},
		{"wrong base", "base: EUR\nrates: {USD: 1.1}\n", 0, true},
		{"empty", "base: USD\n", 0, true},
		{"malformed", "rates: [", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rates, err := Parse([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEUR, rates["EUR"])
		})
	}

	_, err := Parse([]byte("base: EUR\nrates: {USD: 1.1}\n"))
	assert.True(t, errors.Is(err, ErrUnsupportedBase))
}

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rates:\n  EUR: 0.95\n  JPY: 150\n"), 0o600))

	rates, err := NewFileProvider(path).Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.95, rates["EUR"])
	assert.Equal(t, 150.0, rates["JPY"])

	_, err = NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml")).Rates(context.Background())
	assert.Error(t, err)
}

func newRatesServer(t *testing.T, status *atomic.Int32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if code := int(status.Load()); code != http.StatusOK {
			http.Error(w, "unavailable", code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"result":"success","base_code":"USD","rates":{"USD":1,"eur":0.92,"KRW":1300}}`)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPProviderFetchAndCache(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusOK)
	server := newRatesServer(t, &status, &calls)

	provider := NewHTTPProvider(zap.NewNop(), server.URL, time.Second, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	provider.now = func() time.Time { return now }

	rates, err := provider.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.92, rates["EUR"])
	assert.Equal(t, 1300.0, rates["KRW"])
	assert.Equal(t, int32(1), calls.Load())

	_, err = provider.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "fresh table should be served from cache")

	now = now.Add(2 * time.Minute)
	_, err = provider.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "expired table should be refetched")
}

func TestHTTPProviderFallsBackToCache(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusOK)
	server := newRatesServer(t, &status, &calls)

	core, logs := observer.New(zapcore.WarnLevel)
	provider := NewHTTPProvider(zap.New(core), server.URL, time.Second, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	provider.now = func() time.Time { return now }

	_, err := provider.Rates(context.Background())
	require.NoError(t, err)

	status.Store(http.StatusServiceUnavailable)
	now = now.Add(time.Hour)

	rates, err := provider.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.92, rates["EUR"])
	assert.Equal(t, 1, logs.FilterMessage("failed to refresh exchange rates, serving cached table").Len())
}

func TestHTTPProviderErrorWithoutCache(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusBadGateway)
	server := newRatesServer(t, &status, &calls)

	_, err := NewHTTPProvider(nil, server.URL, time.Second, time.Minute).Rates(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPProviderRejectsForeignBase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"base":"EUR","rates":{"USD":1.08}}`)
	}))
	defer server.Close()

	_, err := NewHTTPProvider(nil, server.URL, time.Second, time.Minute).Rates(context.Background())
	assert.True(t, errors.Is(err, ErrUnsupportedBase))
}

func TestHTTPProviderHonorsContext(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusOK)
	server := newRatesServer(t, &status, &calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPProvider(nil, server.URL, time.Second, time.Minute).Rates(ctx)
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.RatesConfig
		want    interface{}
		wantErr bool
	}{
		{"default", config.RatesConfig{}, &FileProvider{}, false},
		{"file", config.RatesConfig{Source: constants.RatesSourceFile, File: "x.yaml"}, &FileProvider{}, false},
		{"http", config.RatesConfig{Source: "HTTP"}, &HTTPProvider{}, false},
		{"static", config.RatesConfig{Source: constants.RatesSourceStatic, Static: map[string]float64{"eur": 1}}, &StaticProvider{}, false},
		{"unknown", config.RatesConfig{Source: "fax"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := FromConfig(zap.NewNop(), tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, provider)
		})
	}
}
