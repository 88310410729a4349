package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:   baseURL,
		Token:     "test-token",
		Timeout:   time.Second,
		UserAgent: "test",
	}, noopLogger())
}

func TestClientInstrumentsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != instrumentsPath {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("offset"); got != "10" {
			t.Fatalf("expected offset=10, got %s", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("missing bearer token, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]string{
				{"symbol": "600519", "name": "Kweichow Moutai"},
				{"symbol": "000001", "name": "Ping An Bank"},
			},
		})
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL).Instruments(context.Background(), 10, 2)
	if err != nil {
		t.Fatalf("Instruments failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(items))
	}
	if items[0].Symbol != "600519" {
		t.Fatalf("unexpected first symbol %s", items[0].Symbol)
	}
}

func TestClientDailyHistoryParsesBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"bars": []map[string]any{
				{
					"symbol": "600519", "date": "20260828",
					"open": "1700.00", "high": "1725.50", "low": "1690.10", "close": "1720.00",
					"volume": 31250, "turnover": "53750000.00",
				},
			},
		})
	}))
	defer srv.Close()

	bars, err := newTestClient(srv.URL).DailyHistory(context.Background(), "600519")
	if err != nil {
		t.Fatalf("DailyHistory failed: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
	bar := bars[0]
	if bar.TradeDate != time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("unexpected trade date %s", bar.TradeDate)
	}
	if bar.Close.String() != "1720" {
		t.Fatalf("unexpected close %s", bar.Close)
	}
	if bar.Volume != 31250 {
		t.Fatalf("unexpected volume %d", bar.Volume)
	}
}

func TestClientQuotaSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "RATE_LIMIT", "message": "quota exhausted"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).DailyHistory(context.Background(), "600519")
	if err == nil {
		t.Fatal("HTTP 429 should return an error")
	}
	if !IsQuotaExceeded(err) {
		t.Fatalf("error should carry the quota signal: %v", err)
	}
}

func TestClientQuotaSignalFromErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "RATE_LIMIT", "message": "daily cap reached"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Statements(context.Background(), "600519", time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC))
	if !IsQuotaExceeded(err) {
		t.Fatalf("RATE_LIMIT code should carry the quota signal: %v", err)
	}
}

func TestClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "BAD_SYMBOL", "message": "unknown symbol"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).DailyHistory(context.Background(), "nope")
	if err == nil {
		t.Fatal("HTTP 400 should return an error")
	}
	if IsQuotaExceeded(err) {
		t.Fatalf("plain error must not look like a quota signal: %v", err)
	}
}

func TestClientDisclosures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("date"); got != "20260830" {
			t.Fatalf("expected date=20260830, got %s", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]string{
				{"symbol": "600519", "period_end": "20260630"},
			},
		})
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL).Disclosures(context.Background(), time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Disclosures failed: %v", err)
	}
	if len(items) != 1 || !items[0].PeriodEnd.Equal(time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected disclosures: %+v", items)
	}
}
