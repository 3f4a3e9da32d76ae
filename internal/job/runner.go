package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmethakanbesel/stockdash/internal/marketdata"
	"github.com/ahmethakanbesel/stockdash/internal/price"
)

// Runner drives one import through
// Initializing → Fetching → Processing → Importing → Completed,
// or to Error / no-data, reporting every step to the Register.
type Runner struct {
	register       *Register
	store          price.Store
	fetcher        marketdata.Fetcher
	now            func() time.Time
	lastTradingDay func(ticker string, now time.Time) time.Time
}

func NewRunner(register *Register, store price.Store, fetcher marketdata.Fetcher) *Runner {
	return &Runner{
		register:       register,
		store:          store,
		fetcher:        fetcher,
		now:            time.Now,
		lastTradingDay: marketdata.LastTradingDay,
	}
}

// Execute implements Executor. The returned error is for logging only; the
// outcome a user sees is what was written to the Register.
func (r *Runner) Execute(ctx context.Context, run Run) error {
	ticker := run.Request.Ticker

	if err := ctx.Err(); err != nil {
		return r.fail("Import cancelled: server is shutting down", fmt.Errorf("%w: %w", ErrCancelled, err))
	}

	sec, err := r.store.FindSecurity(ctx, ticker)
	if err != nil {
		return r.fail("Database error while looking up security", fmt.Errorf("%w: find security %s: %w", ErrPersist, ticker, err))
	}
	if sec == nil {
		return r.fail("Security not found", fmt.Errorf("%w: %s", ErrSecurityNotFound, ticker))
	}

	r.register.Update(Update{
		Message:  fmt.Sprintf("Fetching data for %s...", ticker),
		Task:     TaskFetching,
		Progress: ptr(10),
		Log:      fmt.Sprintf("Fetching %s of data for %s", run.Request.Period.Label(), ticker),
	})

	bars, err := r.fetch(ctx, ticker, run.Request.Period)
	if err != nil {
		if errors.Is(err, errNoQuote) {
			return r.fail("Could not fetch current price", err)
		}
		return r.fail(fmt.Sprintf("Failed to fetch data for %s", ticker), err)
	}

	r.register.Update(Update{
		Message:  "Processing data...",
		Task:     TaskProcessing,
		Progress: ptr(30),
		Log:      fmt.Sprintf("Received %d records", len(bars)),
	})

	if len(bars) == 0 {
		msg := fmt.Sprintf("No historical data found for %s for the selected period", ticker)
		r.register.Update(Update{
			Message: msg,
			Task:    TaskCompleted,
			Error:   ptr(false),
			Running: ptr(false),
			Log:     msg,
		})
		return ErrNoData
	}

	if err := r.persist(ctx, sec.ID, bars); err != nil {
		return r.fail(fmt.Sprintf("Failed to save data for %s", ticker), err)
	}

	r.register.Update(Update{
		Message:  fmt.Sprintf("Successfully imported data for %s", ticker),
		Task:     TaskCompleted,
		Progress: ptr(100),
		Error:    ptr(false),
		Running:  ptr(false),
		Log:      fmt.Sprintf("Imported %d records for %s", len(bars), ticker),
	})
	return nil
}

func (r *Runner) fetch(ctx context.Context, ticker string, period Period) ([]marketdata.Bar, error) {
	now := r.now().UTC()

	var from time.Time
	switch period {
	case PeriodRecent:
		from = now.AddDate(0, 0, -365)
	case PeriodLong:
		from = now.AddDate(0, 0, -25*365)
	case PeriodLatest:
		return r.fetchLatest(ctx, ticker, now)
	default:
		return nil, fmt.Errorf("%w: unsupported period %q", ErrFetch, period)
	}

	bars, err := r.fetcher.Fetch(ctx, ticker, from, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return bars, nil
}

// fetchLatest reads the bar of the last trading day. When the provider has
// not published it yet, the current reference price stands in for it as a
// bar dated yesterday.
func (r *Runner) fetchLatest(ctx context.Context, ticker string, now time.Time) ([]marketdata.Bar, error) {
	day := r.lastTradingDay(ticker, now)

	// Exchanges east of UTC stamp their daily bar on the previous UTC day,
	// so ask for one extra day and match on the exchange-local date.
	bars, err := r.fetcher.Fetch(ctx, ticker, day.AddDate(0, 0, -1), day)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	for i := len(bars) - 1; i >= 0; i-- {
		if sameDay(bars[i].Date, day) {
			return bars[i : i+1], nil
		}
	}

	r.register.Update(Update{
		Message: fmt.Sprintf("Fetching current price for %s...", ticker),
		Task:    TaskFetching,
		Log:     fmt.Sprintf("No bar for %s yet, using current price", day.Format(time.DateOnly)),
	})

	q, err := r.fetcher.Quote(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrFetch, errNoQuote, err)
	}
	if q == nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, errNoQuote)
	}

	y := now.AddDate(0, 0, -1)
	closePrice, adjClose, volume := q.Price, q.Price, q.Volume
	return []marketdata.Bar{{
		Date:     time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC),
		Close:    &closePrice,
		AdjClose: &adjClose,
		Volume:   &volume,
	}}, nil
}

func (r *Runner) persist(ctx context.Context, securityID int64, bars []marketdata.Bar) error {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrPersist, err)
	}
	defer func() { _ = tx.Rollback() }()

	total := len(bars)
	step := (total + 9) / 10

	for i, b := range bars {
		if err := tx.UpsertBar(ctx, securityID, toPriceBar(b)); err != nil {
			return fmt.Errorf("%w: upsert %s: %w", ErrPersist, b.Date.Format(time.DateOnly), err)
		}

		processed := i + 1
		if processed == 1 || processed%step == 0 || processed == total {
			msg := fmt.Sprintf("Importing records: %d/%d", processed, total)
			r.register.Update(Update{
				Message:  msg,
				Task:     TaskImporting,
				Progress: ptr(30 + 70*processed/total),
				Log:      msg,
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrPersist, err)
	}
	return nil
}

// fail moves the run to the Error state and hands err back for logging.
func (r *Runner) fail(msg string, err error) error {
	r.register.Update(Update{
		Message: msg,
		Task:    TaskError,
		Error:   ptr(true),
		Running: ptr(false),
		Log:     "Error: " + err.Error(),
	})
	return err
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func toPriceBar(b marketdata.Bar) price.Bar {
	return price.Bar{
		Date:     b.Date,
		Open:     b.Open,
		High:     b.High,
		Low:      b.Low,
		Close:    b.Close,
		AdjClose: b.AdjClose,
		Volume:   b.Volume,
	}
}
