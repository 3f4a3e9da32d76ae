package job

import (
	"fmt"

	"github.com/ahmethakanbesel/stockdash/internal/apperror"
)

type ImportRequest struct {
	Ticker string `json:"ticker"`
	Period Period `json:"period"`
}

func (r ImportRequest) Validate() *apperror.AppError {
	if r.Ticker == "" {
		return apperror.New(apperror.BadRequest, "No security identifier provided")
	}
	if !r.Period.Valid() {
		return apperror.New(apperror.BadRequest, fmt.Sprintf("Invalid period: %s", r.Period))
	}
	return nil
}
