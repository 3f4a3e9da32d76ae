package yahoo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fp(v float64) *float64 { return &v }

// newTestServer returns a mock Yahoo Finance server that serves cookie, crumb,
// and chart endpoints, along with a Fetcher configured to use it.
func newTestServer(t *testing.T, chart http.HandlerFunc) (*httptest.Server, *Fetcher) {
	t.Helper()

	mux := http.NewServeMux()

	// Cookie endpoint: just set a cookie.
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "A3", Value: "test-session"})
		w.WriteHeader(http.StatusOK)
	})

	// Crumb endpoint: return a crumb string.
	mux.HandleFunc("/crumb", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("test-crumb-123"))
	})

	mux.HandleFunc("/chart/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("crumb") != "test-crumb-123" {
			t.Errorf("expected crumb=test-crumb-123, got %s", q.Get("crumb"))
		}
		if q.Get("interval") != "1d" {
			t.Errorf("expected interval=1d, got %s", q.Get("interval"))
		}
		chart(w, r)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	f := New(
		WithWorkers(1),
		WithClient(ts.Client()),
		WithChartEndpoint(ts.URL+"/chart"),
		WithCookieURL(ts.URL+"/cookie"),
		WithCrumbURL(ts.URL+"/crumb"),
	)

	return ts, f
}

func serveChart(resp chartResponse) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func sampleChart() chartResponse {
	var resp chartResponse
	res := chartResult{Timestamp: []int64{1704205800, 1704292200, 1704378600}}
	res.Meta.Symbol = "AAPL"
	res.Meta.GMTOffset = -18000
	res.Indicators.Quote = []quoteSeries{{
		Open:   []*float64{fp(187.15), fp(184.22), fp(182.15)},
		High:   []*float64{fp(188.44), fp(185.88), fp(183.09)},
		Low:    []*float64{fp(183.89), fp(183.43), fp(180.88)},
		Close:  []*float64{fp(185.64), nil, fp(181.91)},
		Volume: []*float64{fp(82488700), fp(58414500), fp(71983600)},
	}}
	res.Indicators.AdjClose = []struct {
		AdjClose []*float64 `json:"adjclose"`
	}{{AdjClose: []*float64{fp(184.73), fp(183.35), fp(181.02)}}}
	resp.Chart.Result = []chartResult{res}
	return resp
}

func TestFetch(t *testing.T) {
	_, f := newTestServer(t, serveChart(sampleChart()))

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	bars, err := f.Fetch(context.Background(), "AAPL", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The null close on 2024-01-03 is dropped.
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}

	b := bars[0]
	if !b.Date.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected 2024-01-02, got %s", b.Date)
	}
	if *b.Open != 187.15 || *b.High != 188.44 || *b.Low != 183.89 {
		t.Errorf("unexpected OHL: %v %v %v", *b.Open, *b.High, *b.Low)
	}
	if *b.Close != 185.64 || *b.AdjClose != 184.73 {
		t.Errorf("unexpected close/adj: %v %v", *b.Close, *b.AdjClose)
	}
	if *b.Volume != 82488700 {
		t.Errorf("unexpected volume: %d", *b.Volume)
	}
	if !bars[1].Date.Equal(time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected 2024-01-04, got %s", bars[1].Date)
	}
}

func TestFetch_EastOfUTCLandsOnLocalDate(t *testing.T) {
	// Tokyo stamps its bars at local midnight: 2024-06-03 15:00 UTC is 2024-06-04 in JST.
	var resp chartResponse
	res := chartResult{Timestamp: []int64{1717340400, 1717426800}}
	res.Meta.Symbol = "7203.T"
	res.Meta.GMTOffset = 32400
	res.Indicators.Quote = []quoteSeries{{Close: []*float64{fp(3400), fp(3425)}}}
	resp.Chart.Result = []chartResult{res}
	_, f := newTestServer(t, serveChart(resp))

	day := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
	bars, err := f.Fetch(context.Background(), "7203.T", day.AddDate(0, 0, -1), day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if !bars[1].Date.Equal(day) || *bars[1].Close != 3425 {
		t.Errorf("expected the 2024-06-04 bar last, got %s close %v", bars[1].Date, *bars[1].Close)
	}
}

func TestFetch_EmptyResult(t *testing.T) {
	_, f := newTestServer(t, serveChart(chartResponse{}))

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	bars, err := f.Fetch(context.Background(), "INVALID", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("expected no bars, got %d", len(bars))
	}
}

func TestFetch_NotFoundIsNoData(t *testing.T) {
	resp := chartResponse{}
	resp.Chart.Error = &chartError{Code: "Not Found", Description: "No data found, symbol may be delisted"}

	_, f := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(resp)
	})

	bars, err := f.Fetch(context.Background(), "GONE", time.Now().AddDate(0, -1, 0), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("expected no bars, got %d", len(bars))
	}
}

func TestFetch_ServerErrorPropagates(t *testing.T) {
	_, f := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := f.Fetch(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now())
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestFetch_UnauthorizedResetsCrumb(t *testing.T) {
	var calls atomic.Int32
	_, f := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	if _, err := f.Fetch(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now()); err == nil {
		t.Fatal("expected error for HTTP 401")
	}

	f.mu.Lock()
	crumb := f.crumb
	f.mu.Unlock()
	if crumb != "" {
		t.Errorf("expected crumb to be cleared, got %q", crumb)
	}
}

func TestFetch_Validation(t *testing.T) {
	f := New()
	ctx := context.Background()

	if _, err := f.Fetch(ctx, "", time.Now(), time.Now()); err == nil {
		t.Error("expected error for empty ticker")
	}
	if _, err := f.Fetch(ctx, "AAPL", time.Time{}, time.Now()); err == nil {
		t.Error("expected error for empty start date")
	}
	if _, err := f.Fetch(ctx, "AAPL", time.Now(), time.Now().AddDate(0, 0, -1)); err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestQuote(t *testing.T) {
	var resp chartResponse
	res := chartResult{}
	res.Meta.RegularMarketPrice = fp(189.25)
	res.Meta.RegularMarketVolume = fp(41000000)
	res.Meta.RegularMarketTime = 1704397800
	resp.Chart.Result = []chartResult{res}

	_, f := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("range") != "1d" {
			t.Errorf("expected range=1d, got %s", r.URL.Query().Get("range"))
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	q, err := f.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q == nil {
		t.Fatal("expected quote")
	}
	if q.Price != 189.25 || q.Volume != 41000000 {
		t.Errorf("unexpected quote: %+v", q)
	}
}

func TestQuote_Unavailable(t *testing.T) {
	_, f := newTestServer(t, serveChart(chartResponse{}))

	q, err := f.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q != nil {
		t.Errorf("expected nil quote, got %+v", q)
	}
}
