package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/shopease/ledger/internal/catalog"
	"github.com/shopease/ledger/internal/checkout"
	"github.com/shopease/ledger/internal/events"
	"github.com/shopease/ledger/internal/inventory"
	kafkax "github.com/shopease/ledger/internal/kafka"
	"github.com/shopease/ledger/internal/ledger"
	"github.com/shopease/ledger/internal/redisx"
	"github.com/shopease/ledger/internal/syncx"
)

// Handler binds the core to the REST surface. Redis and the producers are
// optional; a nil field just disables the cache or event path.
type Handler struct {
	Checkout *checkout.Coordinator
	Orders   *ledger.Ledger
	Catalog  *catalog.Catalog
	Redis    *redis.Client

	ProducerCreated  *kafkax.Producer
	ProducerStatus   *kafkax.Producer
	ProducerRejected *kafkax.Producer

	Service string
}

func (h *Handler) Register(r *chi.Mux) {
	r.Post("/checkout", h.postCheckout)

	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Post("/orders/{id}/status", h.postOrderStatus)
	r.Get("/users/{userID}/orders", h.listUserOrders)
	r.Get("/admin/orders", h.listAllOrders)

	r.Get("/products", h.listProducts)
	r.Post("/products", h.addProduct)
	r.Get("/products/{id}", h.getProduct)
	r.Put("/products/{id}", h.updateProduct)
	r.Delete("/products/{id}", h.deleteProduct)
	r.Post("/products/{id}/reviews", h.addReview)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	body := map[string]string{"error": err.Error()}
	var stockErr *catalog.InsufficientStockError
	var transErr *ledger.InvalidTransitionError
	switch {
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidQuantity),
		errors.Is(err, catalog.ErrInvalidRating):
		writeJSON(w, http.StatusBadRequest, body)
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      err.Error(),
			"product_id": stockErr.ProductID,
			"required":   stockErr.Required,
			"available":  stockErr.Available,
		})
	case errors.As(err, &transErr):
		writeJSON(w, http.StatusConflict, body)
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, inventory.ErrNotFound):
		writeJSON(w, http.StatusNotFound, body)
	case errors.Is(err, syncx.ErrBusy):
		writeJSON(w, http.StatusServiceUnavailable, body)
	default:
		writeJSON(w, http.StatusInternalServerError, body)
	}
}

type CheckoutReq struct {
	ExternalID string              `json:"external_id"`
	UserID     string              `json:"user_id"`
	Items      []checkout.CartLine `json:"items"`
	Shipping   ledger.ShippingInfo `json:"shipping_info"`
	Payment    ledger.PaymentInfo  `json:"payment_info"`
}

func (h *Handler) postCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ExternalID == "" || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Replay fast path: a cached external id short-circuits to the existing
	// order. The store remains the source of truth on a cache miss.
	idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, req.ExternalID)
	if h.Redis != nil {
		if orderID, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && orderID != "" {
			if o, err := h.Orders.Get(ctx, orderID); err == nil {
				writeJSON(w, http.StatusOK, o)
				return
			}
		}
	}

	order, err := h.Checkout.Checkout(ctx, checkout.Request{
		ExternalID: req.ExternalID,
		UserID:     req.UserID,
		Lines:      req.Items,
		Shipping:   req.Shipping,
		Payment:    req.Payment,
	})
	if err != nil {
		var stockErr *catalog.InsufficientStockError
		if errors.As(err, &stockErr) {
			h.publishStockRejected(r, req.ExternalID, stockErr)
		}
		writeError(w, err)
		return
	}

	if h.Redis != nil {
		_ = h.Redis.Set(ctx, idemKey, order.ID, redisx.TTLIdempotency).Err()
		statusKey := fmt.Sprintf(redisx.KeyOrderStatus, order.ID)
		_ = h.Redis.Set(ctx, statusKey, statusBody(order.Status), redisx.TTLStatusCache).Err()
	}
	h.publishOrderCreated(r, order)

	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getOrderStatus serves the hot read path: redis first, store as fallback.
func (h *Handler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	o, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	body := statusBody(o.Status)
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
	}
	writeJSON(w, http.StatusOK, json.RawMessage(body))
}

func statusBody(s ledger.Status) string {
	return fmt.Sprintf(`{"status":%q}`, s)
}

type transitionReq struct {
	Status ledger.Status `json:"status"`
}

func (h *Handler) postOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req transitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	before, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := h.Orders.TransitionStatus(ctx, orderID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		_ = h.Redis.Set(ctx, key, statusBody(o.Status), redisx.TTLStatusCache).Err()
	}
	h.publishStatusChanged(r, o, before.Status)

	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Orders.ListForUser(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	f := ledger.ListFilter{
		Status: ledger.Status(r.URL.Query().Get("status")),
		Limit:  atoiDefault(r.URL.Query().Get("limit"), 0),
		Offset: atoiDefault(r.URL.Query().Get("offset"), 0),
	}
	out, err := h.Orders.ListAll(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return def
	}
	return i
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.List(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Catalog.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) addProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Catalog.Add(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Catalog.Update(ctx, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Catalog.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reviewReq struct {
	Author string `json:"author"`
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

func (h *Handler) addReview(w http.ResponseWriter, r *http.Request) {
	var req reviewReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Catalog.AddReview(ctx, chi.URLParam(r, "id"), req.Author, req.Rating, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) envelope(r *http.Request, eventType, orderID string, payload any) []byte {
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	return kafkax.MustMarshal(ev)
}

func eventHeaders(eventType string) []kafkago.Header {
	return []kafkago.Header{
		{Key: "x-event-type", Value: []byte(eventType)},
		{Key: "x-event-version", Value: []byte("1")},
	}
}

func (h *Handler) publishOrderCreated(r *http.Request, o *ledger.Order) {
	if h.ProducerCreated == nil {
		return
	}
	items := make([]events.ItemSnapshot, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, events.ItemSnapshot{
			ProductID:  it.ProductID,
			Variant:    it.Variant,
			Qty:        it.Qty,
			PriceCents: it.PriceCents,
		})
	}
	value := h.envelope(r, events.EventOrderCreated, o.ID, events.OrderCreatedPayload{
		OrderID:    o.ID,
		ExternalID: o.ExternalID,
		UserID:     o.UserID,
		Items:      items,
		TotalCents: o.TotalCents,
	})
	h.ProducerCreated.Publish(events.PartitionKey(o.ID), value, eventHeaders(events.EventOrderCreated)...)
}

func (h *Handler) publishStatusChanged(r *http.Request, o *ledger.Order, from ledger.Status) {
	if h.ProducerStatus == nil {
		return
	}
	value := h.envelope(r, events.EventOrderStatusChanged, o.ID, events.OrderStatusChangedPayload{
		OrderID: o.ID,
		From:    string(from),
		To:      string(o.Status),
	})
	h.ProducerStatus.Publish(events.PartitionKey(o.ID), value, eventHeaders(events.EventOrderStatusChanged)...)
}

func (h *Handler) publishStockRejected(r *http.Request, ref string, stockErr *catalog.InsufficientStockError) {
	if h.ProducerRejected == nil {
		return
	}
	value := h.envelope(r, events.EventStockRejected, ref, events.StockRejectedPayload{
		Ref:    ref,
		Reason: "OUT_OF_STOCK",
		Details: []events.StockRejectedDetail{{
			ProductID: stockErr.ProductID,
			Required:  stockErr.Required,
			Available: stockErr.Available,
		}},
	})
	h.ProducerRejected.Publish(events.PartitionKey(ref), value, eventHeaders(events.EventStockRejected)...)
}
