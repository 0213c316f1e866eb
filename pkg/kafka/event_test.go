package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	AccessKey string `json:"access_key"`
	ItemCount int    `json:"item_count"`
}

func TestNewEvent(t *testing.T) {
	event, err := NewEvent("commerce.cart.updated", "cart-1", "cart", "cart-service", testPayload{
		AccessKey: "abc123",
		ItemCount: 3,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "commerce.cart.updated", event.EventType)
	assert.Equal(t, "cart-1", event.AggregateID)
	assert.Equal(t, "cart", event.AggregateType)
	assert.Equal(t, "cart-service", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.False(t, event.Timestamp.IsZero())
}

func TestEvent_DataRoundTrip(t *testing.T) {
	event, err := NewEvent("commerce.cart.updated", "cart-1", "cart", "cart-service", testPayload{
		AccessKey: "abc123",
		ItemCount: 3,
	})
	require.NoError(t, err)

	var decoded testPayload
	require.NoError(t, event.UnmarshalData(&decoded))
	assert.Equal(t, "abc123", decoded.AccessKey)
	assert.Equal(t, 3, decoded.ItemCount)
}

func TestEvent_WithCorrelationID(t *testing.T) {
	event, err := NewEvent("commerce.cart.cleared", "cart-1", "cart", "cart-service", nil)
	require.NoError(t, err)

	event.WithCorrelationID("corr-7")
	assert.Equal(t, "corr-7", event.CorrelationID)
}

func TestNewEvent_UnmarshalableData(t *testing.T) {
	_, err := NewEvent("commerce.cart.updated", "cart-1", "cart", "cart-service", make(chan int))
	assert.Error(t, err)
}
