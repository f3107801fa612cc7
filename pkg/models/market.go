package models

import (
	"time"

	"github.com/alim08/cryptobook/pkg/validation"
)

// Coin is read-only reference data.
type Coin struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	Slug      string  `json:"slug"`
	Price     float64 `json:"price"`
	Volume24h float64 `json:"volume_24h"`
}

// Trade references its user and coin by identifier; both are resolved lazily.
type Trade struct {
	ID     string    `json:"id"`
	UserID string    `json:"userId"`
	CoinID string    `json:"coinId"`
	Amount float64   `json:"amount"`
	Time   time.Time `json:"time"`
}

// TradeInput is the addTrade mutation payload.
type TradeInput struct {
	UserID string     `json:"userId" validate:"required,identifier"`
	CoinID string     `json:"coinId" validate:"required,identifier"`
	Amount float64    `json:"amount" validate:"gt=0"`
	Time   *time.Time `json:"time"`
}

// Validate validates the TradeInput struct
func (in TradeInput) Validate() error {
	if errs := validation.ValidateStruct(in); len(errs) > 0 {
		return errs
	}
	return nil
}
