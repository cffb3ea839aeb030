package catalog

import (
	"context"
	"fmt"

	"github.com/utafrali/cartstate/internal/domain"
)

// ProductClient reads product metadata from GET {base}/products/{id}.
type ProductClient struct {
	client
}

// NewProductClient creates a product client for the API rooted at baseURL.
func NewProductClient(doer HTTPDoer, baseURL string) *ProductClient {
	return &ProductClient{client: newClient(doer, baseURL)}
}

// productPayload accepts both the name/image_url and title/image spellings.
type productPayload struct {
	ID       *int64  `json:"id"`
	Name     string  `json:"name"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	ImageURL string  `json:"image_url"`
	Image    string  `json:"image"`
}

// GetProduct returns catalog metadata for productID.
func (c *ProductClient) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	var raw productPayload
	if err := c.get(ctx, "products", productID, &raw); err != nil {
		return domain.Product{}, err
	}
	if raw.ID == nil || *raw.ID != productID {
		return domain.Product{}, fmt.Errorf("%w: asked product %d, got %s", ErrMalformedResponse, productID, describeID(raw.ID))
	}

	p := domain.Product{
		ID:       productID,
		Name:     raw.Name,
		Price:    raw.Price,
		ImageURL: raw.ImageURL,
	}
	if p.Name == "" {
		p.Name = raw.Title
	}
	if p.ImageURL == "" {
		p.ImageURL = raw.Image
	}
	if p.Price < 0 {
		return domain.Product{}, fmt.Errorf("%w: product %d: negative price", ErrMalformedResponse, productID)
	}
	return p, nil
}

func describeID(id *int64) string {
	if id == nil {
		return "no id"
	}
	return fmt.Sprintf("%d", *id)
}
