package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addItemRequest struct {
	StockID  string `validate:"required"`
	Title    string `validate:"required,max=500"`
	Quantity int    `validate:"required,gte=1"`
	Delivery string `validate:"omitempty,oneof=collect deliver"`
}

func TestValidate_Valid(t *testing.T) {
	req := addItemRequest{StockID: "WDG-1", Title: "Widget", Quantity: 2}
	assert.NoError(t, Validate(req))
}

func TestValidate_MissingFields(t *testing.T) {
	err := Validate(addItemRequest{})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))

	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["StockID"])
	assert.Equal(t, "is required", fields["Title"])
	assert.Contains(t, err.Error(), "Quantity")
}

func TestValidate_OneOf(t *testing.T) {
	req := addItemRequest{StockID: "WDG-1", Title: "Widget", Quantity: 1, Delivery: "teleport"}
	err := Validate(req)
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "must be one of: collect deliver", valErr.Fields()["Delivery"])
}
