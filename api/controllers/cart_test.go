package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kapehan/kapehan-backend/api/middleware"
	cartsvc "github.com/kapehan/kapehan-backend/internal/cart"
	pkgerrors "github.com/kapehan/kapehan-backend/pkg/errors"
)

type stubCartService struct {
	item   *cartsvc.ItemDTO
	result cartsvc.AddResult
	cart   *cartsvc.CartDTO
	err    error
}

func (s stubCartService) AddItem(ctx context.Context, userID uuid.UUID, input cartsvc.AddItemInput) (*cartsvc.ItemDTO, cartsvc.AddResult, error) {
	return s.item, s.result, s.err
}

func (s stubCartService) UpdateItemQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*cartsvc.ItemDTO, error) {
	return s.item, s.err
}

func (s stubCartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	return s.err
}

func (s stubCartService) ListItems(ctx context.Context, userID uuid.UUID) (*cartsvc.CartDTO, error) {
	return s.cart, s.err
}

func (s stubCartService) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.err
}

func authedRequest(method, target string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	return req.WithContext(ctx)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, routeCtx))
}

func TestCartGetSuccess(t *testing.T) {
	t.Parallel()

	cart := &cartsvc.CartDTO{CartID: uuid.New(), Subtotal: "0.00"}
	handler := CartGet(stubCartService{cart: cart}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/cart", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var envelope struct {
		Data cartsvc.CartDTO `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.CartID != cart.CartID {
		t.Fatalf("cart id = %s, want %s", envelope.Data.CartID, cart.CartID)
	}
}

func TestCartGetRejectsMissingUser(t *testing.T) {
	t.Parallel()

	handler := CartGet(stubCartService{}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestCartAddItemCreated(t *testing.T) {
	t.Parallel()

	item := &cartsvc.ItemDTO{ID: uuid.New(), Quantity: 2}
	handler := CartAddItem(stubCartService{item: item, result: cartsvc.AddResultCreated}, nil)

	body := `{"product_id": "` + uuid.NewString() + `", "variant_id": "` + uuid.NewString() + `", "quantity": 2}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/cart/items", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
}

func TestCartAddItemMergedReturnsOK(t *testing.T) {
	t.Parallel()

	item := &cartsvc.ItemDTO{ID: uuid.New(), Quantity: 5}
	handler := CartAddItem(stubCartService{item: item, result: cartsvc.AddResultUpdated}, nil)

	body := `{"product_id": "` + uuid.NewString() + `", "variant_id": "` + uuid.NewString() + `", "quantity": 3}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/cart/items", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestCartAddItemRejectsBadPayload(t *testing.T) {
	t.Parallel()

	handler := CartAddItem(stubCartService{}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/cart/items", `{"quantity": 0}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCartUpdateItemPropagatesNotFound(t *testing.T) {
	t.Parallel()

	handler := CartUpdateItem(stubCartService{err: pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")}, nil)

	req := withURLParam(authedRequest(http.MethodPatch, "/api/v1/cart/items/"+uuid.NewString(), `{"quantity": 3}`), "itemID", uuid.NewString())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCartNilServiceFailsClosed(t *testing.T) {
	t.Parallel()

	handler := CartGet(nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/cart", ""))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}
