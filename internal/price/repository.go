package price

import (
	"context"
	"time"
)

// Store is what an import run needs: catalog lookup and a private write
// transaction.
type Store interface {
	// FindSecurity returns nil, nil when the ticker is not in the catalog.
	FindSecurity(ctx context.Context, ticker string) (*Security, error)
	Begin(ctx context.Context) (Tx, error)
}

// Tx upserts bars keyed by (security, date). Nothing is visible to other
// readers until Commit.
type Tx interface {
	UpsertBar(ctx context.Context, securityID int64, b Bar) error
	Commit() error
	Rollback() error
}

type Repository interface {
	Store
	EnsureSecurity(ctx context.Context, ticker, name string) (*Security, error)
	ListSecurities(ctx context.Context) ([]Security, error)
	ListBars(ctx context.Context, securityID int64, from, to time.Time) ([]Bar, error)
	Ping(ctx context.Context) error
}
