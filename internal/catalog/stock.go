package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/utafrali/cartstate/internal/domain"
)

// StockClient reads available quantities from GET {base}/stock/{id}.
type StockClient struct {
	client
}

// NewStockClient creates a stock client for the API rooted at baseURL.
func NewStockClient(doer HTTPDoer, baseURL string) *StockClient {
	return &StockClient{client: newClient(doer, baseURL)}
}

// GetStock returns the current stock of productID. It is never cached.
func (c *StockClient) GetStock(ctx context.Context, productID int64) (domain.Stock, error) {
	var raw struct {
		ID     *int64       `json:"id"`
		Amount *json.Number `json:"amount"`
	}
	if err := c.get(ctx, "stock", productID, &raw); err != nil {
		return domain.Stock{}, err
	}
	if raw.Amount == nil {
		return domain.Stock{}, fmt.Errorf("%w: stock %d: missing amount", ErrMalformedResponse, productID)
	}
	amount, err := raw.Amount.Int64()
	if err != nil || amount < 0 {
		return domain.Stock{}, fmt.Errorf("%w: stock %d: invalid amount %q", ErrMalformedResponse, productID, raw.Amount.String())
	}
	if raw.ID != nil && *raw.ID != productID {
		return domain.Stock{}, fmt.Errorf("%w: asked stock of %d, got %d", ErrMalformedResponse, productID, *raw.ID)
	}
	return domain.Stock{ID: productID, Amount: int(amount)}, nil
}
