package domain

import "time"

// Discount is a promotional code that can be attached to a cart. Amount is
// the value of the discount in cents; how it is applied at checkout is not
// this service's concern.
type Discount struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Code      string     `json:"code"`
	Amount    int64      `json:"amount"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the discount is past its expiry at the given time.
// Discounts with no expiry never expire.
func (d *Discount) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && d.ExpiresAt.Before(now)
}
