package price

import (
	"time"

	"github.com/ahmethakanbesel/stockdash/internal/apperror"
)

type GetPricesRequest struct {
	Ticker    string
	StartDate time.Time
	EndDate   time.Time
	Format    string
}

func (r GetPricesRequest) Validate() *apperror.AppError {
	if r.Ticker == "" {
		return apperror.New(apperror.BadRequest, "ticker is required")
	}
	if !r.StartDate.IsZero() && !r.EndDate.IsZero() && r.StartDate.After(r.EndDate) {
		return apperror.New(apperror.BadRequest, "startDate cannot be after endDate")
	}
	if r.Format != "" && r.Format != "json" && r.Format != "csv" {
		return apperror.New(apperror.BadRequest, "format must be json or csv")
	}
	return nil
}

type GetPricesResponse struct {
	Security Security `json:"security"`
	Bars     []Bar    `json:"bars"`
}
