package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartstate/internal/domain"
	"github.com/utafrali/cartstate/internal/notify"
	"github.com/utafrali/cartstate/internal/repository/memory"
	"github.com/utafrali/cartstate/internal/service"
	"github.com/utafrali/cartstate/pkg/health"
	"github.com/utafrali/cartstate/pkg/middleware"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeStock map[int64]int

func (f fakeStock) GetStock(_ context.Context, productID int64) (domain.Stock, error) {
	amount, ok := f[productID]
	if !ok {
		return domain.Stock{}, errors.New("stock api: connection refused")
	}
	return domain.Stock{ID: productID, Amount: amount}, nil
}

type fakeCatalog map[int64]domain.Product

func (f fakeCatalog) GetProduct(_ context.Context, productID int64) (domain.Product, error) {
	p, ok := f[productID]
	if !ok {
		return domain.Product{}, errors.New("catalog api: connection refused")
	}
	return p, nil
}

// ============================================================================
// Test helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testEnv struct {
	router   http.Handler
	manager  *service.CartManager
	recorder *notify.Recorder
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	stock := fakeStock{1: 3, 2: 1, 5: 0}
	catalog := fakeCatalog{
		1: {ID: 1, Name: "Tênis de Caminhada", Price: 179.9, ImageURL: "https://img/1.jpg"},
		2: {ID: 2, Name: "Tênis VR", Price: 139.9, ImageURL: "https://img/2.jpg"},
	}
	recorder := notify.NewRecorder(20)
	manager, err := service.NewCartManager(context.Background(), stock, catalog, memory.NewSnapshotStore(),
		recorder, testLogger(), service.Options{StorageKey: "test:cart"})
	require.NoError(t, err)

	hh := health.NewHandler()
	hh.RegisterCritical("store", func(context.Context) error { return nil })

	return &testEnv{
		router:   NewRouter(manager, recorder, hh, testLogger(), RouterOptions{CORS: middleware.DefaultCORSConfig()}),
		manager:  manager,
		recorder: recorder,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *errorResponse  `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) CartView {
	t.Helper()
	env := decode(t, rec)
	require.Nil(t, env.Error)
	var view CartView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view
}

// ============================================================================
// Tests
// ============================================================================

func TestGetCart_Empty(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodGet, "/api/v1/cart", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	view := decodeCart(t, rec)
	assert.Empty(t, view.Items)
	assert.Empty(t, view.Amounts)
	assert.Zero(t, view.ItemCount)
}

func TestAddItem_InsertsAndIncrements(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	view := decodeCart(t, rec)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "Tênis de Caminhada", view.Items[0].Name)
	assert.Equal(t, map[int64]int{1: 2}, view.Amounts)
	assert.Equal(t, 2, view.ItemCount)
}

func TestAddItem_ConcurrentResponsesShowOwnCommit(t *testing.T) {
	env := setup(t)

	const n = 3
	amounts := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"product_id":1}`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d", rec.Code)
				return
			}
			var body struct {
				Data CartView `json:"data"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Errorf("decode: %v", err)
				return
			}
			amounts <- body.Data.Amounts[1]
		}()
	}
	wg.Wait()
	close(amounts)

	var got []int
	for a := range amounts {
		got = append(got, a)
	}
	assert.ElementsMatch(t, []int{1, 2, 3}, got, "each response reflects the cart its own add committed")
}

func TestAddItem_OutOfStock(t *testing.T) {
	env := setup(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":2}`).Code)
	env.recorder.Drain()

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":2}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	require.NotNil(t, body.Error)
	assert.Equal(t, "OUT_OF_STOCK", body.Error.Code)
	assert.Equal(t, 1, env.manager.Cart().AmountOf(2))
}

func TestAddItem_UpstreamFailure(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":99}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "SERVICE_FAILURE", decode(t, rec).Error.Code)
}

func TestAddItem_ValidationErrors(t *testing.T) {
	env := setup(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"missing product", `{}`, "VALIDATION_ERROR"},
		{"zero product", `{"product_id":0}`, "VALIDATION_ERROR"},
		{"negative product", `{"product_id":-4}`, "VALIDATION_ERROR"},
		{"unknown field", `{"product_id":1,"qty":2}`, "INVALID_INPUT"},
		{"malformed", `{"product_id":`, "INVALID_INPUT"},
		{"trailing data", `{"product_id":1}{}`, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/cart/items", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decode(t, rec).Error.Code)
		})
	}
	assert.Empty(t, env.manager.Cart())
}

func TestAddItem_RejectsNonJSONContentType(t *testing.T) {
	env := setup(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader("product_id=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUpdateItemAmount(t *testing.T) {
	env := setup(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1}`).Code)

	rec := env.do(t, http.MethodPut, "/api/v1/cart/items/1", `{"amount":3}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[int64]int{1: 3}, decodeCart(t, rec).Amounts)
}

func TestUpdateItemAmount_Failures(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"zero amount", "/api/v1/cart/items/1", `{"amount":0}`, http.StatusBadRequest, "INVALID_QUANTITY"},
		{"negative amount", "/api/v1/cart/items/1", `{"amount":-2}`, http.StatusBadRequest, "INVALID_QUANTITY"},
		{"missing amount", "/api/v1/cart/items/1", `{}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"above stock", "/api/v1/cart/items/1", `{"amount":4}`, http.StatusConflict, "OUT_OF_STOCK"},
		{"not in cart", "/api/v1/cart/items/2", `{"amount":1}`, http.StatusNotFound, "NOT_FOUND"},
		{"bad id", "/api/v1/cart/items/abc", `{"amount":1}`, http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)
			require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1}`).Code)

			rec := env.do(t, http.MethodPut, tt.path, tt.body)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode(t, rec).Error.Code)
			assert.Equal(t, 1, env.manager.Cart().AmountOf(1))
		})
	}
}

func TestRemoveItem(t *testing.T) {
	env := setup(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1}`).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":2}`).Code)

	rec := env.do(t, http.MethodDelete, "/api/v1/cart/items/1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	view := decodeCart(t, rec)
	require.Len(t, view.Items, 1)
	assert.Equal(t, int64(2), view.Items[0].ID)

	rec = env.do(t, http.MethodDelete, "/api/v1/cart/items/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListNotifications_Drains(t *testing.T) {
	env := setup(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":1}`)
	env.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":5}`)

	rec := env.do(t, http.MethodGet, "/api/v1/notifications", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var got []notify.Notification
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, notify.MsgProductAdded, got[0].Message)
	assert.Equal(t, notify.SeverityInfo, got[0].Severity)
	assert.Equal(t, notify.MsgOutOfStock, got[1].Message)
	assert.Equal(t, notify.SeverityError, got[1].Severity)

	rec = env.do(t, http.MethodGet, "/api/v1/notifications", "")
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	env := setup(t)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/ready", "").Code)

	env.do(t, http.MethodGet, "/api/v1/cart", "")
	rec := env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	env := setup(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cart/items", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
