package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	apperrors "github.com/utafrali/cartstate/pkg/errors"
	"github.com/utafrali/cartstate/pkg/httpclient"
	"github.com/utafrali/cartstate/pkg/logger"
)

// HTTPDoer executes HTTP requests. Both httpclient.Client and
// httpclient.CircuitBreakerClient satisfy it.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// CircuitOpenFallback replaces gobreaker's open-state error with a
// ServiceUnavailable error while the catalog API is failing.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("catalog API is temporarily unavailable")
}

// ErrMalformedResponse is returned when the catalog API answers 2xx with a
// body that cannot be used.
var ErrMalformedResponse = errors.New("malformed catalog response")

const maxBodyBytes = 1 << 20

// client holds what StockClient and ProductClient share.
type client struct {
	http    HTTPDoer
	baseURL string
}

func newClient(doer HTTPDoer, baseURL string) client {
	return client{http: doer, baseURL: strings.TrimRight(baseURL, "/")}
}

// get fetches {base}/{resource}/{id} and decodes a single JSON record into
// dst. A one-element array is accepted in place of the object.
func (c client) get(ctx context.Context, resource string, id int64, dst any) error {
	idStr := strconv.FormatInt(id, 10)
	url := c.baseURL + "/" + resource + "/" + idStr

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("build %s request: %w", resource, err)
	}
	req.Header.Set("Accept", "application/json")
	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		req.Header.Set("X-Correlation-ID", cid)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("get %s %s: %w", resource, idStr, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.ParseResponseError(resp, resource, idStr)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", resource, idStr, err)
	}
	return decodeRecord(body, resource, idStr, dst)
}

func decodeRecord(body []byte, resource, id string, dst any) error {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(body, &list); err != nil {
			return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, resource, id, err)
		}
		if len(list) == 0 {
			return apperrors.NotFound(resource, id)
		}
		body = list[0]
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, resource, id, err)
	}
	return nil
}

// Ping reports whether the catalog API answers at all. Any response below
// 500 counts as reachable.
func (c client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", http.NoBody)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("ping catalog: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode >= 500 {
		return fmt.Errorf("ping catalog: status %d", resp.StatusCode)
	}
	return nil
}
