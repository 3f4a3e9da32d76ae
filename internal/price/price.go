package price

import "time"

type Security struct {
	ID        int64     `json:"id"`
	Ticker    string    `json:"ticker"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Bar is one trading day of a security. Every field but Date may be unset.
type Bar struct {
	Date     time.Time `json:"date"`
	Open     *float64  `json:"open"`
	High     *float64  `json:"high"`
	Low      *float64  `json:"low"`
	Close    *float64  `json:"close"`
	AdjClose *float64  `json:"adjClose"`
	Volume   *int64    `json:"volume"`
}
