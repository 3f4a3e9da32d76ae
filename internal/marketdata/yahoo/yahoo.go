// Package yahoo implements a market-data fetcher for Yahoo Finance daily
// bars. It uses the v8 chart API with cookie + crumb authentication, matching
// the approach used by the yfinance Python library.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahmethakanbesel/stockdash/internal/marketdata"
)

const (
	defaultChartEndpoint = "https://query2.finance.yahoo.com/v8/finance/chart"
	defaultCookieURL     = "https://fc.yahoo.com"
	defaultCrumbURL      = "https://query1.finance.yahoo.com/v1/test/getcrumb"
	dateFormat           = "2006-01-02"
	chunkDays            = 1250
	userAgent            = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// errNoData marks a chart answer that carries no series for the symbol.
var errNoData = errors.New("yahoo: no data")

// Fetcher fetches daily bars and quotes from Yahoo Finance.
type Fetcher struct {
	workers       int
	client        *http.Client
	chartEndpoint string
	cookieURL     string
	crumbURL      string

	mu    sync.Mutex
	crumb string
}

var _ marketdata.Fetcher = (*Fetcher)(nil)

// New creates a Fetcher with the given options applied.
func New(opts ...Option) *Fetcher {
	jar, _ := cookiejar.New(nil)
	f := &Fetcher{
		workers:       5,
		client:        &http.Client{Jar: jar, Timeout: 30 * time.Second},
		chartEndpoint: defaultChartEndpoint,
		cookieURL:     defaultCookieURL,
		crumbURL:      defaultCrumbURL,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithWorkers sets the worker concurrency for parallel chunk fetching.
func WithWorkers(n int) Option {
	return func(f *Fetcher) { f.workers = n }
}

// WithClient sets the HTTP client. The client should have a cookie jar.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithChartEndpoint overrides the default chart API endpoint.
func WithChartEndpoint(ep string) Option {
	return func(f *Fetcher) { f.chartEndpoint = ep }
}

// WithCookieURL overrides the URL used to obtain the session cookie.
func WithCookieURL(u string) Option {
	return func(f *Fetcher) { f.cookieURL = u }
}

// WithCrumbURL overrides the URL used to obtain the crumb token.
func WithCrumbURL(u string) Option {
	return func(f *Fetcher) { f.crumbURL = u }
}

// chartResponse represents the Yahoo Finance v8 chart API response.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta       chartMeta `json:"meta"`
	Timestamp  []int64   `json:"timestamp"`
	Indicators struct {
		Quote    []quoteSeries `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

type chartMeta struct {
	Symbol              string   `json:"symbol"`
	GMTOffset           int64    `json:"gmtoffset"`
	RegularMarketPrice  *float64 `json:"regularMarketPrice"`
	RegularMarketVolume *float64 `json:"regularMarketVolume"`
	RegularMarketTime   int64    `json:"regularMarketTime"`
	ChartPreviousClose  *float64 `json:"chartPreviousClose"`
}

type quoteSeries struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

// Fetch returns daily bars for the ticker between from and to, inclusive.
func (f *Fetcher) Fetch(ctx context.Context, ticker string, from, to time.Time) ([]marketdata.Bar, error) {
	if ticker == "" {
		return nil, fmt.Errorf("ticker cannot be empty")
	}
	if from.IsZero() {
		return nil, fmt.Errorf("start date cannot be empty")
	}
	if to.IsZero() {
		to = time.Now()
	}
	if from.After(to) {
		return nil, fmt.Errorf("start date cannot be after end date")
	}

	// Ensure we have a valid crumb before starting parallel fetches.
	if err := f.ensureCrumb(ctx); err != nil {
		return nil, fmt.Errorf("yahoo auth: %w", err)
	}

	chunks := marketdata.SplitDateRange(from, to, chunkDays)
	results := make([][]marketdata.Bar, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.workers, 1))

	for i, c := range chunks {
		g.Go(func() error {
			// period2 is exclusive upstream; push it to the end of the day.
			res, err := f.fetchChart(gctx, ticker, url.Values{
				"period1": {strconv.FormatInt(c.From.Unix(), 10)},
				"period2": {strconv.FormatInt(c.To.AddDate(0, 0, 1).Unix(), 10)},
			})
			if errors.Is(err, errNoData) {
				return nil
			}
			if err != nil {
				slog.Error("error retrieving yahoo data", "ticker", ticker,
					"startDate", c.From.Format(dateFormat), "endDate", c.To.Format(dateFormat), "error", err)
				return err
			}
			results[i] = toBars(res, c.From, c.To)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []marketdata.Bar
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// Quote returns the last regular market price reported in the chart meta.
func (f *Fetcher) Quote(ctx context.Context, ticker string) (*marketdata.Quote, error) {
	if ticker == "" {
		return nil, fmt.Errorf("ticker cannot be empty")
	}
	if err := f.ensureCrumb(ctx); err != nil {
		return nil, fmt.Errorf("yahoo auth: %w", err)
	}

	res, err := f.fetchChart(ctx, ticker, url.Values{"range": {"1d"}})
	if errors.Is(err, errNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	price := res.Meta.RegularMarketPrice
	if price == nil {
		price = res.Meta.ChartPreviousClose
	}
	if price == nil || *price <= 0 {
		return nil, nil
	}

	q := &marketdata.Quote{Price: *price}
	if res.Meta.RegularMarketVolume != nil {
		q.Volume = int64(*res.Meta.RegularMarketVolume)
	}
	if res.Meta.RegularMarketTime > 0 {
		q.Time = time.Unix(res.Meta.RegularMarketTime, 0).UTC()
	}
	return q, nil
}

// ensureCrumb fetches a session cookie and crumb token if not already cached.
func (f *Fetcher) ensureCrumb(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.crumb != "" {
		return nil
	}

	// Step 1: GET fc.yahoo.com to obtain a session cookie.
	cookieReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cookieURL, nil)
	if err != nil {
		return fmt.Errorf("build cookie request: %w", err)
	}
	cookieReq.Header.Set("User-Agent", userAgent)

	cookieRes, err := f.client.Do(cookieReq) //nolint:gosec // URL from internal config
	if err != nil {
		return fmt.Errorf("fetch cookie: %w", err)
	}
	_ = cookieRes.Body.Close()

	// Step 2: GET crumb endpoint (cookie is sent automatically via jar).
	crumbReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.crumbURL, nil)
	if err != nil {
		return fmt.Errorf("build crumb request: %w", err)
	}
	crumbReq.Header.Set("User-Agent", userAgent)

	crumbRes, err := f.client.Do(crumbReq) //nolint:gosec // URL from internal config
	if err != nil {
		return fmt.Errorf("fetch crumb: %w", err)
	}
	defer func() { _ = crumbRes.Body.Close() }()

	if crumbRes.StatusCode != http.StatusOK {
		return fmt.Errorf("crumb endpoint returned HTTP %d", crumbRes.StatusCode)
	}

	body, err := io.ReadAll(crumbRes.Body)
	if err != nil {
		return fmt.Errorf("read crumb: %w", err)
	}

	crumb := strings.TrimSpace(string(body))
	if crumb == "" {
		return fmt.Errorf("empty crumb received")
	}

	f.crumb = crumb
	slog.Info("yahoo: obtained crumb", "crumb_len", len(crumb))
	return nil
}

// fetchChart performs one chart request and returns its first result.
func (f *Fetcher) fetchChart(ctx context.Context, ticker string, params url.Values) (*chartResult, error) {
	f.mu.Lock()
	crumb := f.crumb
	f.mu.Unlock()

	params.Set("interval", "1d")
	params.Set("events", "div,splits")
	params.Set("includeAdjustedClose", "true")
	params.Set("crumb", crumb)
	reqURL := fmt.Sprintf("%s/%s?%s", f.chartEndpoint, url.PathEscape(ticker), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := f.client.Do(req) //nolint:gosec // URL built from internal config
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return nil, errNoData
	}
	if res.StatusCode != http.StatusOK {
		// Invalidate crumb on auth errors so the next call retries auth.
		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
			f.mu.Lock()
			f.crumb = ""
			f.mu.Unlock()
		}
		return nil, fmt.Errorf("yahoo returned HTTP %d for %s", res.StatusCode, ticker)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse yahoo response: %w", err)
	}

	if resp.Chart.Error != nil {
		if resp.Chart.Error.Code == "Not Found" {
			return nil, errNoData
		}
		return nil, fmt.Errorf("yahoo chart error: %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}

	if len(resp.Chart.Result) == 0 {
		return nil, errNoData
	}
	return &resp.Chart.Result[0], nil
}

// toBars converts a chart result into bars, dropping rows without a close
// and rows outside [from, to].
func toBars(res *chartResult, from, to time.Time) []marketdata.Bar {
	if len(res.Indicators.Quote) == 0 {
		return nil
	}
	q := res.Indicators.Quote[0]
	var adj []*float64
	if len(res.Indicators.AdjClose) > 0 {
		adj = res.Indicators.AdjClose[0].AdjClose
	}

	first := from.Truncate(24 * time.Hour)
	last := to.Truncate(24 * time.Hour)

	bars := make([]marketdata.Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		closeVal := at(q.Close, i)
		if closeVal == nil {
			continue
		}
		// Shift by the exchange offset so the bar lands on its local trading date.
		date := time.Unix(ts+res.Meta.GMTOffset, 0).UTC().Truncate(24 * time.Hour)
		if date.Before(first) || date.After(last) {
			continue
		}
		b := marketdata.Bar{
			Date:     date,
			Open:     at(q.Open, i),
			High:     at(q.High, i),
			Low:      at(q.Low, i),
			Close:    closeVal,
			AdjClose: at(adj, i),
		}
		if v := at(q.Volume, i); v != nil {
			n := int64(*v)
			b.Volume = &n
		}
		bars = append(bars, b)
	}

	slog.Debug("retrieved yahoo data", "ticker", res.Meta.Symbol,
		"from", from.Format(dateFormat), "to", to.Format(dateFormat),
		"count", len(bars))

	return bars
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}
