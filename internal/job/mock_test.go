package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahmethakanbesel/stockdash/internal/marketdata"
	"github.com/ahmethakanbesel/stockdash/internal/price"
)

type mockStore struct {
	mu         sync.Mutex
	securities map[string]*price.Security
	committed  []price.Bar
	rollbacks  int
	findErr    error
	upsertErr  error
	onUpsert   func()
}

func newMockStore(tickers ...string) *mockStore {
	s := &mockStore{securities: make(map[string]*price.Security)}
	for i, t := range tickers {
		s.securities[t] = &price.Security{ID: int64(i + 1), Ticker: t}
	}
	return s
}

func (s *mockStore) FindSecurity(_ context.Context, ticker string) (*price.Security, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.securities[ticker], nil
}

func (s *mockStore) Begin(_ context.Context) (price.Tx, error) {
	return &mockTx{store: s}, nil
}

func (s *mockStore) bars() []price.Bar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]price.Bar(nil), s.committed...)
}

type mockTx struct {
	store   *mockStore
	pending []price.Bar
	done    bool
}

func (tx *mockTx) UpsertBar(_ context.Context, _ int64, b price.Bar) error {
	if tx.store.onUpsert != nil {
		tx.store.onUpsert()
	}
	if tx.store.upsertErr != nil {
		return tx.store.upsertErr
	}
	tx.pending = append(tx.pending, b)
	return nil
}

func (tx *mockTx) Commit() error {
	if tx.done {
		return errors.New("tx done")
	}
	tx.done = true
	tx.store.mu.Lock()
	tx.store.committed = append(tx.store.committed, tx.pending...)
	tx.store.mu.Unlock()
	return nil
}

func (tx *mockTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.mu.Lock()
	tx.store.rollbacks++
	tx.store.mu.Unlock()
	return nil
}

type fetchCall struct {
	ticker   string
	from, to time.Time
}

type mockFetcher struct {
	mu       sync.Mutex
	bars     []marketdata.Bar
	quote    *marketdata.Quote
	fetchErr error
	quoteErr error
	calls    []fetchCall
	quotes   int
	onFetch  func()
}

func (f *mockFetcher) Fetch(_ context.Context, ticker string, from, to time.Time) ([]marketdata.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{ticker: ticker, from: from, to: to})
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.bars, nil
}

func (f *mockFetcher) Quote(_ context.Context, _ string) (*marketdata.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes++
	return f.quote, f.quoteErr
}

func dailyBars(n int, start time.Time) []marketdata.Bar {
	bars := make([]marketdata.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		v := int64(1000 + i)
		bars[i] = marketdata.Bar{Date: start.AddDate(0, 0, i), Close: &c, AdjClose: &c, Volume: &v}
	}
	return bars
}
