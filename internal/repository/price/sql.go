package price

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	domain "github.com/ahmethakanbesel/stockdash/internal/price"
)

const dateFormat = "2006-01-02"

// Dialect selects the placeholder syntax. The SQL itself is shared: both
// engines accept INSERT ... ON CONFLICT DO UPDATE.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

type Repository struct {
	db      *sql.DB
	dialect Dialect
}

func NewRepository(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{db: db, dialect: dialect}
}

// rebind rewrites ? placeholders to $n for postgres.
func (r *Repository) rebind(query string) string {
	if r.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) FindSecurity(ctx context.Context, ticker string) (*domain.Security, error) {
	query := r.rebind(`SELECT id, ticker, name, created_at FROM securities WHERE ticker = ?`)

	s := &domain.Security{}
	var createdStr string
	err := r.db.QueryRowContext(ctx, query, ticker).Scan(&s.ID, &s.Ticker, &s.Name, &createdStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find security: %w", err)
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	return s, nil
}

func (r *Repository) EnsureSecurity(ctx context.Context, ticker, name string) (*domain.Security, error) {
	query := r.rebind(`INSERT INTO securities (ticker, name) VALUES (?, ?)
		ON CONFLICT (ticker) DO NOTHING`)

	if _, err := r.db.ExecContext(ctx, query, ticker, name); err != nil {
		return nil, fmt.Errorf("ensure security: %w", err)
	}

	s, err := r.FindSecurity(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("ensure security: %s missing after insert", ticker)
	}
	return s, nil
}

func (r *Repository) ListSecurities(ctx context.Context) ([]domain.Security, error) {
	const query = `SELECT id, ticker, name, created_at FROM securities ORDER BY ticker ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list securities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	securities := []domain.Security{}
	for rows.Next() {
		var s domain.Security
		var createdStr string
		if err := rows.Scan(&s.ID, &s.Ticker, &s.Name, &createdStr); err != nil {
			return nil, fmt.Errorf("scan security: %w", err)
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		securities = append(securities, s)
	}

	return securities, rows.Err()
}

func (r *Repository) ListBars(ctx context.Context, securityID int64, from, to time.Time) ([]domain.Bar, error) {
	query := `SELECT date, open, high, low, close, adj_close, volume
		FROM prices WHERE security_id = ?`
	args := []any{securityID}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, from.Format(dateFormat))
	}
	if !to.IsZero() {
		query += " AND date <= ?"
		args = append(args, to.Format(dateFormat))
	}
	query += " ORDER BY date ASC"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list bars: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bars []domain.Bar
	for rows.Next() {
		var dateStr string
		var open, high, low, closeVal, adjClose sql.NullFloat64
		var volume sql.NullInt64
		if err := rows.Scan(&dateStr, &open, &high, &low, &closeVal, &adjClose, &volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b := domain.Bar{
			Open:     floatPtr(open),
			High:     floatPtr(high),
			Low:      floatPtr(low),
			Close:    floatPtr(closeVal),
			AdjClose: floatPtr(adjClose),
		}
		b.Date, _ = time.Parse(dateFormat, dateStr)
		if volume.Valid {
			v := volume.Int64
			b.Volume = &v
		}
		bars = append(bars, b)
	}

	return bars, rows.Err()
}

// Begin opens the private write transaction of one import run.
func (r *Repository) Begin(ctx context.Context) (domain.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	return &importTx{tx: tx, upsert: r.rebind(upsertBar)}, nil
}

const upsertBar = `INSERT INTO prices (security_id, date, open, high, low, close, adj_close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (security_id, date) DO UPDATE SET
		open = excluded.open,
		high = excluded.high,
		low = excluded.low,
		close = excluded.close,
		adj_close = excluded.adj_close,
		volume = excluded.volume`

type importTx struct {
	tx     *sql.Tx
	upsert string
}

func (t *importTx) UpsertBar(ctx context.Context, securityID int64, b domain.Bar) error {
	_, err := t.tx.ExecContext(ctx, t.upsert,
		securityID, b.Date.Format(dateFormat),
		nullFloat(b.Open), nullFloat(b.High), nullFloat(b.Low),
		nullFloat(b.Close), nullFloat(b.AdjClose), nullInt(b.Volume),
	)
	if err != nil {
		return fmt.Errorf("upsert bar %s: %w", b.Date.Format(dateFormat), err)
	}
	return nil
}

func (t *importTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

func (t *importTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("rollback import: %w", err)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
