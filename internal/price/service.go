package price

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmethakanbesel/stockdash/internal/apperror"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SeedSecurities makes sure every ticker exists in the catalog.
func (s *Service) SeedSecurities(ctx context.Context, seeds map[string]string) error {
	for ticker, name := range seeds {
		sec, err := s.repo.EnsureSecurity(ctx, strings.ToUpper(ticker), name)
		if err != nil {
			return fmt.Errorf("seed security %s: %w", ticker, err)
		}
		slog.Debug("security ensured", "ticker", sec.Ticker, "id", sec.ID)
	}
	return nil
}

func (s *Service) ListSecurities(ctx context.Context) ([]Security, error) {
	return s.repo.ListSecurities(ctx)
}

func (s *Service) GetPrices(ctx context.Context, req GetPricesRequest) (*GetPricesResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sec, err := s.repo.FindSecurity(ctx, strings.ToUpper(req.Ticker))
	if err != nil {
		return nil, fmt.Errorf("find security: %w", err)
	}
	if sec == nil {
		return nil, apperror.New(apperror.NotFound, "security not found")
	}

	endDate := req.EndDate
	if endDate.IsZero() {
		endDate = time.Now().UTC().Truncate(24 * time.Hour)
	}

	bars, err := s.repo.ListBars(ctx, sec.ID, req.StartDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("list bars: %w", err)
	}
	if bars == nil {
		bars = []Bar{}
	}

	return &GetPricesResponse{Security: *sec, Bars: bars}, nil
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
