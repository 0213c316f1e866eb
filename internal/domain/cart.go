package domain

import "time"

// DeliveryType describes how a cart's contents will be fulfilled.
type DeliveryType string

const (
	DeliveryCollect DeliveryType = "collect"
	DeliveryDeliver DeliveryType = "deliver"
)

// Cart is the aggregate root for a shopping basket. Anonymous carts are
// addressed by AccessKey only; once OwnerID is set the key becomes a
// secondary handle and the cart survives session loss.
type Cart struct {
	ID           string       `json:"id"`
	AccessKey    string       `json:"access_key"`
	OwnerID      string       `json:"owner_id,omitempty"`
	Items        []LineItem   `json:"items"`
	DiscountID   string       `json:"discount_id,omitempty"`
	DiscountCode string       `json:"discount_code,omitempty"`
	PostageID    string       `json:"postage_id,omitempty"`
	DeliveryType DeliveryType `json:"delivery_type"`
	Revision     int          `json:"revision"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// HasOwner reports whether the cart has been claimed by an account.
func (c *Cart) HasOwner() bool {
	return c.OwnerID != ""
}

// TotalAmount calculates the pre-tax total of all items in cents,
// customisation surcharges included.
func (c *Cart) TotalAmount() int64 {
	var total int64
	for i := range c.Items {
		total += c.Items[i].LineAmount()
	}
	return total
}

// TaxAmount calculates the total tax across all items in cents.
func (c *Cart) TaxAmount() int64 {
	var total int64
	for i := range c.Items {
		total += c.Items[i].TaxAmount()
	}
	return total
}

// TotalItems returns the summed quantity across all line items.
func (c *Cart) TotalItems() int {
	var count int
	for i := range c.Items {
		count += c.Items[i].Quantity
	}
	return count
}

// TotalWeight returns the shipping weight of the cart in grams.
func (c *Cart) TotalWeight() int64 {
	var total int64
	for i := range c.Items {
		total += c.Items[i].Weight * int64(c.Items[i].Quantity)
	}
	return total
}

// IsDeliverable reports whether any item in the cart needs shipping.
func (c *Cart) IsDeliverable() bool {
	for i := range c.Items {
		if c.Items[i].Deliverable {
			return true
		}
	}
	return false
}

// IsLocked reports whether every item in the cart is locked. An empty cart
// is not locked.
func (c *Cart) IsLocked() bool {
	if len(c.Items) == 0 {
		return false
	}
	for i := range c.Items {
		if !c.Items[i].Locked {
			return false
		}
	}
	return true
}

// FindItemIndex returns the index of the item with the given key, or -1.
// O(n) search, but carts are small and this centralizes the lookup.
func (c *Cart) FindItemIndex(key string) int {
	for i := range c.Items {
		if c.Items[i].Key == key {
			return i
		}
	}
	return -1
}

// HasDiscount reports whether a discount is attached to the cart.
func (c *Cart) HasDiscount() bool {
	return c.DiscountID != ""
}
