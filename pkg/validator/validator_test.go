package validator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

type amountRequest struct {
	Amount *int `json:"amount" validate:"required"`
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(addRequest{ProductID: 3}))
}

func TestValidate_UsesJSONFieldNames(t *testing.T) {
	err := Validate(addRequest{})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]string{"product_id": "is required"}, verr.Fields())
	assert.Equal(t, "field 'product_id' is required", verr.Error())
}

func TestValidate_GreaterThan(t *testing.T) {
	err := Validate(addRequest{ProductID: -1})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "must be greater than 0", verr.Fields()["product_id"])
}

func TestValidate_RequiredPointerAcceptsZero(t *testing.T) {
	zero := 0
	assert.NoError(t, Validate(amountRequest{Amount: &zero}))
	assert.Error(t, Validate(amountRequest{}))
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"product_id":5}`, ""},
		{"malformed", `{"product_id":`, "decode request body"},
		{"unknown field", `{"product_id":5,"price":1}`, "unknown field"},
		{"trailing data", `{"product_id":5}{"product_id":6}`, "trailing data"},
		{"fails validation", `{"product_id":0}`, "is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst addRequest
			err := DecodeAndValidate(req, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, int64(5), dst.ProductID)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
