package object

import (
	"encoding/json"

	"github.com/obsidian-labs/marketdata-pipeline/internal/fixedpoint"
)

// Level is a single price/quantity pair. A quantity of zero at a price means
// "remove that level" when applied as part of an OrderbookUpdate.
type Level struct {
	Price    fixedpoint.FixedPrice
	Quantity fixedpoint.FixedQty
}

type levelWire struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// MarshalJSON renders the level as decimal strings, matching the wire
// convention used for every exchange-originated price/quantity field.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(levelWire{Price: l.Price.String(), Quantity: l.Quantity.String()})
}

// UnmarshalJSON parses a level from decimal strings. External floats are
// rejected at this boundary per the fixed-point parsing contract.
func (l *Level) UnmarshalJSON(data []byte) error {
	var w levelWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	price, err := fixedpoint.ParsePrice(w.Price)
	if err != nil {
		return err
	}
	qty, err := fixedpoint.ParseQty(w.Quantity)
	if err != nil {
		return err
	}
	l.Price = price
	l.Quantity = qty
	return nil
}

// IsRemoval reports whether this level signals removal of its price.
func (l Level) IsRemoval() bool {
	return l.Quantity.IsZero()
}
