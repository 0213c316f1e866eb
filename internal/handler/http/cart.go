package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/commercekit/cart-service/internal/domain"
	"github.com/commercekit/cart-service/internal/service"
	apperrors "github.com/commercekit/cart-service/pkg/errors"
	"github.com/commercekit/cart-service/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	resolver      *service.CartResolver
	logger        *slog.Logger
	secureCookies bool
}

// NewCartHandler creates a cart HTTP handler. secureCookies should be true
// whenever the service is reached over HTTPS.
func NewCartHandler(resolver *service.CartResolver, logger *slog.Logger, secureCookies bool) *CartHandler {
	return &CartHandler{
		resolver:      resolver,
		logger:        logger,
		secureCookies: secureCookies,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding a line to the cart.
type AddItemRequest struct {
	Title          string                 `json:"title" validate:"required,min=1,max=500"`
	StockID        string                 `json:"stock_id" validate:"required"`
	Quantity       int                    `json:"quantity" validate:"required,gte=1"`
	UnitPrice      int64                  `json:"unit_price" validate:"gte=0"`
	TaxRate        int                    `json:"tax_rate" validate:"gte=0,lte=10000"`
	Weight         int64                  `json:"weight" validate:"gte=0"`
	Deliverable    bool                   `json:"deliverable"`
	Locked         bool                   `json:"locked"`
	Stocked        bool                   `json:"stocked"`
	Customisations []CustomisationRequest `json:"customisations" validate:"dive"`
}

// CustomisationRequest is a customisation within an AddItemRequest.
type CustomisationRequest struct {
	Title string `json:"title" validate:"required"`
	Value string `json:"value" validate:"required"`
	Price int64  `json:"price"`
}

// UpdateQuantityRequest is the JSON request body for updating a line quantity.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// DiscountRequest is the JSON request body for applying a discount code.
type DiscountRequest struct {
	Code string `json:"code" validate:"required"`
}

// DeliveryRequest is the JSON request body for switching delivery type.
type DeliveryRequest struct {
	DeliveryType string `json:"delivery_type" validate:"required,oneof=collect deliver"`
}

// PostageRequest is the JSON request body for selecting postage.
type PostageRequest struct {
	PostageID string `json:"postage_id" validate:"required"`
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

// cartPayload decorates the cart with derived totals for API consumers.
type cartPayload struct {
	*domain.Cart
	TotalAmount int64 `json:"total_amount"`
	TaxAmount   int64 `json:"tax_amount"`
	TotalItems  int   `json:"total_items"`
	TotalWeight int64 `json:"total_weight"`
	Deliverable bool  `json:"deliverable"`
}

func newCartPayload(cart *domain.Cart) cartPayload {
	return cartPayload{
		Cart:        cart,
		TotalAmount: cart.TotalAmount(),
		TaxAmount:   cart.TaxAmount(),
		TotalItems:  cart.TotalItems(),
		TotalWeight: cart.TotalWeight(),
		Deliverable: cart.IsDeliverable(),
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, _, ok := h.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, response{Data: newCartPayload(cart)})
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	cart, _, ok := h.resolve(w, r)
	if !ok {
		return
	}

	customisations := make([]service.CustomisationInput, len(req.Customisations))
	for i, c := range req.Customisations {
		customisations[i] = service.CustomisationInput{Title: c.Title, Value: c.Value, Price: c.Price}
	}

	cart, err := h.resolver.AddItem(r.Context(), cart, service.AddItemInput{
		Title:          req.Title,
		StockID:        req.StockID,
		Quantity:       req.Quantity,
		UnitPrice:      req.UnitPrice,
		TaxRate:        req.TaxRate,
		Weight:         req.Weight,
		Deliverable:    req.Deliverable,
		Locked:         req.Locked,
		Stocked:        req.Stocked,
		Customisations: customisations,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: newCartPayload(cart)})
}

// UpdateItem handles PUT /api/v1/cart/items/{key}
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req UpdateQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}

	cart, _, ok := h.resolve(w, r)
	if !ok {
		return
	}

	cart, err := h.resolver.UpdateItem(r.Context(), cart, key, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: newCartPayload(cart)})
}

// RemoveItem handles DELETE /api/v1/cart/items/{key}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	cart, _, ok := h.resolve(w, r)
	if !ok {
		return
	}

	cart, err := h.resolver.RemoveItem(r.Context(), cart, key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: newCartPayload(cart)})
}

// RemoveAll handles DELETE /api/v1/cart/items
func (h *CartHandler) RemoveAll(w http.ResponseWriter, r *http.Request) {
	cart, _, ok := h.resolve(w, r)
	if !ok {
		return
	}

	cart, err := h.resolver.RemoveAll(r.Context(), cart)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: newCartPayload(cart)})
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart, _, ok := h.resolve(w, r)
	if !ok {
		return
	}

	cart, err := h.resolver.Clear(r.Context(), cart)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: newCartPayload(cart)})
}

// ApplyDiscount handles POST /api/v1/cart/discount
func (h *CartHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req DiscountRequest
	if !h.decode(w, r, &req) {
		return
	}

	cart, _, ok := h.resolve(w, r)
	if !ok {
		return
	}

	cart, err := h.resolver.SetDiscount(r.Context(), cart, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: newCartPayload(cart)})
}

// RemoveDiscount handles DELETE /api/v1/cart/discount
func (h *CartHandler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	cart, _, ok := h.resolve(w, r)
	if !ok {
		return
	}

	cart, err := h.resolver.RemoveDiscount(r.Context(), cart)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: newCartPayload(cart)})
}

// SetDelivery handles PUT /api/v1/cart/delivery
func (h *CartHandler) SetDelivery(w http.ResponseWriter, r *http.Request) {
	var req DeliveryRequest
	if !h.decode(w, r, &req) {
		return
	}

	cart, _, ok := h.resolve(w, r)
	if !ok {
		return
	}

	cart, err := h.resolver.SetDeliveryType(r.Context(), cart, domain.DeliveryType(req.DeliveryType))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: newCartPayload(cart)})
}

// SetPostage handles PUT /api/v1/cart/postage
func (h *CartHandler) SetPostage(w http.ResponseWriter, r *http.Request) {
	var req PostageRequest
	if !h.decode(w, r, &req) {
		return
	}

	cart, _, ok := h.resolve(w, r)
	if !ok {
		return
	}

	cart, err := h.resolver.SetPostage(r.Context(), cart, req.PostageID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: newCartPayload(cart)})
}

// DestroyCart handles DELETE /api/v1/cart/destroy
func (h *CartHandler) DestroyCart(w http.ResponseWriter, r *http.Request) {
	cart, identity, ok := h.resolve(w, r)
	if !ok {
		return
	}

	if err := h.resolver.Destroy(r.Context(), identity, cart); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]string{"status": "deleted"}})
}

// --- Helpers ---

func (h *CartHandler) resolve(w http.ResponseWriter, r *http.Request) (*domain.Cart, *requestIdentity, bool) {
	identity := newRequestIdentity(w, r, h.secureCookies)

	cart, err := h.resolver.Resolve(r.Context(), identity)
	if err != nil {
		h.writeError(w, r, err)
		return nil, nil, false
	}
	return cart, identity, true
}

func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return false
	}

	if err := validator.Validate(v); err != nil {
		h.writeValidationError(w, err)
		return false
	}
	return true
}

func (h *CartHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Status == http.StatusInternalServerError {
			h.logInternal(r, err)
		}
		writeJSON(w, appErr.Status, response{
			Error: &errorResponse{Code: appErr.Code, Message: appErr.Message},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	code := "INTERNAL_ERROR"
	message := "an internal error occurred"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code, message = "NOT_FOUND", "resource not found"
	case errors.Is(err, apperrors.ErrInvalidInput):
		code, message = "INVALID_INPUT", err.Error()
	case errors.Is(err, apperrors.ErrConflict):
		code, message = "CONFLICT", "cart was modified concurrently, please retry"
	}

	if status == http.StatusInternalServerError {
		h.logInternal(r, err)
	}

	writeJSON(w, status, response{
		Error: &errorResponse{Code: code, Message: message},
	})
}

func (h *CartHandler) logInternal(r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "internal error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
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
