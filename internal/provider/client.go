package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-sync/internal/storage"
)

const (
	instrumentsPath = "/instruments"
	historyPath     = "/daily/history"
	quotesPath      = "/daily/quotes"
	disclosuresPath = "/disclosures"
	statementsPath  = "/statements"

	dateLayout = "20060102"
)

// Options parameterise the HTTP provider client.
type Options struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the market-data HTTP API.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs an HTTP provider client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "provider").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Instruments pages the instrument catalogue.
func (c *Client) Instruments(ctx context.Context, offset, limit int) ([]Instrument, error) {
	query := url.Values{}
	query.Set("offset", fmt.Sprintf("%d", offset))
	query.Set("limit", fmt.Sprintf("%d", limit))

	var payload struct {
		Items []struct {
			Symbol string `json:"symbol"`
			Name   string `json:"name"`
		} `json:"items"`
	}
	if err := c.get(ctx, instrumentsPath, query, &payload); err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}

	items := make([]Instrument, 0, len(payload.Items))
	for _, it := range payload.Items {
		items = append(items, Instrument{Symbol: it.Symbol, Name: it.Name})
	}
	return items, nil
}

// DailyHistory fetches the full daily-bar history for one symbol.
func (c *Client) DailyHistory(ctx context.Context, symbol string) ([]storage.DailyBar, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	var payload struct {
		Bars []barPayload `json:"bars"`
	}
	if err := c.get(ctx, historyPath, query, &payload); err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", symbol, err)
	}
	return decodeBars(payload.Bars)
}

// DailyQuotes fetches all bars for one trade date.
func (c *Client) DailyQuotes(ctx context.Context, date time.Time) ([]storage.DailyBar, error) {
	query := url.Values{}
	query.Set("date", date.UTC().Format(dateLayout))

	var payload struct {
		Bars []barPayload `json:"bars"`
	}
	if err := c.get(ctx, quotesPath, query, &payload); err != nil {
		return nil, fmt.Errorf("fetch quotes for %s: %w", date.Format(dateLayout), err)
	}
	return decodeBars(payload.Bars)
}

// Disclosures fetches the statements disclosed on a given day.
func (c *Client) Disclosures(ctx context.Context, date time.Time) ([]Disclosure, error) {
	query := url.Values{}
	query.Set("date", date.UTC().Format(dateLayout))

	var payload struct {
		Items []struct {
			Symbol    string `json:"symbol"`
			PeriodEnd string `json:"period_end"`
		} `json:"items"`
	}
	if err := c.get(ctx, disclosuresPath, query, &payload); err != nil {
		return nil, fmt.Errorf("fetch disclosures for %s: %w", date.Format(dateLayout), err)
	}

	items := make([]Disclosure, 0, len(payload.Items))
	for _, it := range payload.Items {
		periodEnd, err := time.ParseInLocation(dateLayout, it.PeriodEnd, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse period_end %q: %w", it.PeriodEnd, err)
		}
		items = append(items, Disclosure{Symbol: it.Symbol, PeriodEnd: periodEnd})
	}
	return items, nil
}

// Statements fetches statement rows for one symbol and reporting period.
func (c *Client) Statements(ctx context.Context, symbol string, periodEnd time.Time) ([]storage.FinancialStatement, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("period", periodEnd.UTC().Format(dateLayout))

	var payload struct {
		Rows []struct {
			Symbol       string `json:"symbol"`
			AnnounceDate string `json:"announce_date"`
			PeriodEnd    string `json:"period_end"`
			Revenue      string `json:"revenue"`
			NetProfit    string `json:"net_profit"`
			EPS          string `json:"eps"`
			ROE          string `json:"roe"`
		} `json:"rows"`
	}
	if err := c.get(ctx, statementsPath, query, &payload); err != nil {
		return nil, fmt.Errorf("fetch statements for %s: %w", symbol, err)
	}

	rows := make([]storage.FinancialStatement, 0, len(payload.Rows))
	for _, r := range payload.Rows {
		announce, err := time.ParseInLocation(dateLayout, r.AnnounceDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse announce_date %q: %w", r.AnnounceDate, err)
		}
		period, err := time.ParseInLocation(dateLayout, r.PeriodEnd, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse period_end %q: %w", r.PeriodEnd, err)
		}
		revenue, err := parseDecimal(r.Revenue, "revenue")
		if err != nil {
			return nil, err
		}
		netProfit, err := parseDecimal(r.NetProfit, "net_profit")
		if err != nil {
			return nil, err
		}
		eps, err := parseDecimal(r.EPS, "eps")
		if err != nil {
			return nil, err
		}
		roe, err := parseDecimal(r.ROE, "roe")
		if err != nil {
			return nil, err
		}
		rows = append(rows, storage.FinancialStatement{
			Symbol:       r.Symbol,
			AnnounceDate: announce,
			PeriodEnd:    period,
			Revenue:      revenue,
			NetProfit:    netProfit,
			EPS:          eps,
			ROE:          roe,
		})
	}
	return rows, nil
}

type barPayload struct {
	Symbol   string `json:"symbol"`
	Date     string `json:"date"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   int64  `json:"volume"`
	Turnover string `json:"turnover"`
}

func decodeBars(payload []barPayload) ([]storage.DailyBar, error) {
	bars := make([]storage.DailyBar, 0, len(payload))
	for _, b := range payload {
		tradeDate, err := time.ParseInLocation(dateLayout, b.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse trade date %q: %w", b.Date, err)
		}
		open, err := parseDecimal(b.Open, "open")
		if err != nil {
			return nil, err
		}
		high, err := parseDecimal(b.High, "high")
		if err != nil {
			return nil, err
		}
		low, err := parseDecimal(b.Low, "low")
		if err != nil {
			return nil, err
		}
		closePx, err := parseDecimal(b.Close, "close")
		if err != nil {
			return nil, err
		}
		turnover, err := parseDecimal(b.Turnover, "turnover")
		if err != nil {
			return nil, err
		}
		bars = append(bars, storage.DailyBar{
			Symbol:    b.Symbol,
			TradeDate: tradeDate,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    b.Volume,
			Turnover:  turnover,
		})
	}
	return bars, nil
}

func parseDecimal(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	return d, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "stocksync/1.0")
	}
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if status == http.StatusTooManyRequests || apiErr.Code == "RATE_LIMIT" {
			return fmt.Errorf("provider api error (%d): %s: %w", status, apiErr.Message, ErrQuotaExceeded)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("provider api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Code != "" {
			return fmt.Errorf("provider api error (%d): %s", status, apiErr.Code)
		}
	}
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("provider api error (%d): %w", status, ErrQuotaExceeded)
	}
	if len(payload) > 0 {
		return fmt.Errorf("provider api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("provider api error (%d)", status)
}

var _ Provider = (*Client)(nil)
