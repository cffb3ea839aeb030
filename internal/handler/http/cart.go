package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/cartstate/internal/domain"
	"github.com/utafrali/cartstate/internal/notify"
	"github.com/utafrali/cartstate/internal/service"
	apperrors "github.com/utafrali/cartstate/pkg/errors"
	"github.com/utafrali/cartstate/pkg/logger"
	"github.com/utafrali/cartstate/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	manager  *service.CartManager
	recorder *notify.Recorder
	logger   *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler. recorder may be nil, in
// which case the notifications endpoint always returns an empty list.
func NewCartHandler(manager *service.CartManager, recorder *notify.Recorder, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		manager:  manager,
		recorder: recorder,
		logger:   logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding one unit of a product.
type AddItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

// UpdateAmountRequest is the JSON request body for setting a line's amount.
// Amount is a pointer so an explicit 0 reaches the cart and is rejected there
// with the same notification as any other invalid quantity.
type UpdateAmountRequest struct {
	Amount *int `json:"amount" validate:"required"`
}

// --- Response envelope ---

type response struct {
	Data  any            `json:"data,omitempty"`
	Error *errorResponse `json:"error,omitempty"`
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// CartView is the representation returned by every cart endpoint.
type CartView struct {
	Items     domain.Cart   `json:"items"`
	Amounts   map[int64]int `json:"amounts"`
	Lines     int           `json:"lines"`
	ItemCount int           `json:"item_count"`
}

func newCartView(c domain.Cart) CartView {
	return CartView{
		Items:     c,
		Amounts:   c.Amounts(),
		Lines:     len(c),
		ItemCount: c.ItemCount(),
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{Data: newCartView(h.manager.Cart())})
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	cart, err := h.manager.AddProduct(r.Context(), req.ProductID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: newCartView(cart)})
}

// UpdateItemAmount handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) UpdateItemAmount(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateAmountRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	input := service.UpdateProductAmountInput{
		ProductID: productID,
		Amount:    *req.Amount,
	}
	cart, err := h.manager.UpdateProductAmount(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: newCartView(cart)})
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	cart, err := h.manager.RemoveProduct(r.Context(), productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: newCartView(cart)})
}

// ListNotifications handles GET /api/v1/notifications. Returned
// notifications are removed from the buffer.
func (h *CartHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications := []notify.Notification{}
	if h.recorder != nil {
		if drained := h.recorder.Drain(); len(drained) > 0 {
			notifications = drained
		}
	}
	writeJSON(w, http.StatusOK, response{Data: notifications})
}

// --- Helpers ---

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "productId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "productId must be a positive integer"},
		})
		return 0, false
	}
	return id, true
}

func (h *CartHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(r.Context(), h.logger).ErrorContext(r.Context(), "cart request failed",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Status, response{
			Error: &errorResponse{Code: appErr.Code, Message: appErr.Message},
		})
		return
	}

	writeJSON(w, status, response{
		Error: &errorResponse{Code: "INTERNAL_ERROR", Message: "an internal error occurred"},
	})
}

func (h *CartHandler) writeValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	writeJSON(w, http.StatusBadRequest, response{
		Error: &errorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}
