package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// LineItem is a single product line in a cart. Items are addressed by Key, a
// fingerprint of the stock identifier plus customisations, so the same
// product with different customisations occupies separate lines.
type LineItem struct {
	ID             string          `json:"id"`
	CartID         string          `json:"cart_id"`
	Key            string          `json:"key"`
	Title          string          `json:"title"`
	StockID        string          `json:"stock_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      int64           `json:"unit_price"`
	TaxRate        int             `json:"tax_rate"`
	Weight         int64           `json:"weight"`
	Deliverable    bool            `json:"deliverable"`
	Locked         bool            `json:"locked"`
	Stocked        bool            `json:"stocked"`
	Customisations []Customisation `json:"customisations,omitempty"`
}

// Customisation is a buyer-selected modification of a line item, such as an
// engraving or a colour choice. Price is a per-unit surcharge in cents.
type Customisation struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Price int64  `json:"price"`
}

// EffectiveUnitPrice returns the unit price including customisation
// surcharges, in cents.
func (li *LineItem) EffectiveUnitPrice() int64 {
	price := li.UnitPrice
	for i := range li.Customisations {
		price += li.Customisations[i].Price
	}
	return price
}

// LineAmount returns the pre-tax line total in cents.
func (li *LineItem) LineAmount() int64 {
	return li.EffectiveUnitPrice() * int64(li.Quantity)
}

// TaxAmount returns the tax owed on this line in cents. TaxRate is in basis
// points, so 2000 means 20%.
func (li *LineItem) TaxAmount() int64 {
	return li.LineAmount() * int64(li.TaxRate) / 10000
}

// ItemKey computes the deterministic fingerprint identifying a line within a
// cart. Customisations are canonicalised by sorting on title then value, so
// the same selections in any order produce the same key.
func ItemKey(stockID string, customisations []Customisation) string {
	parts := make([]string, 0, len(customisations))
	for _, c := range customisations {
		parts = append(parts, fmt.Sprintf("%s=%s:%d", c.Title, c.Value, c.Price))
	}
	sort.Strings(parts)

	h := sha256.New()
	h.Write([]byte(stockID))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil))
}
