package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopledger/internal/domain"
	"github.com/joao-fontenele/shopledger/internal/pgtx"
)

type fakeStore struct {
	products   map[string]*domain.Product
	err        error
	writeErr   error
	lastFilter Filter
}

func newFakeStore(products ...domain.Product) *fakeStore {
	s := &fakeStore{products: map[string]*domain.Product{}}
	for i := range products {
		p := products[i]
		s.products[p.ID] = &p
	}
	return s
}

func (s *fakeStore) List(_ context.Context, f Filter) ([]domain.Product, error) {
	s.lastFilter = f
	if s.err != nil {
		return nil, s.err
	}
	out := []domain.Product{}
	for _, p := range s.products {
		if (f.Featured && !p.IsFeatured) || (f.Trending && !p.IsTrending) || (f.BestSellers && p.SalesCount == 0) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SalesCount != out[j].SalesCount {
			return out[i].SalesCount > out[j].SalesCount
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *fakeStore) SetFlags(_ context.Context, id string, featured, trending *bool) (*domain.Product, error) {
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	if featured != nil {
		p.IsFeatured = *featured
	}
	if trending != nil {
		p.IsTrending = *trending
	}
	return p, nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*domain.Product, error) {
	return s.products[id], s.err
}

func (s *fakeStore) Create(_ context.Context, p *domain.Product) error {
	if _, ok := s.products[p.ID]; ok {
		return ErrDuplicateProduct
	}
	s.products[p.ID] = p
	return nil
}

func (s *fakeStore) UpdatePricing(_ context.Context, id string, price *decimal.Decimal, pct *int) (*domain.Product, error) {
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	newPrice, newPct := p.Price, p.DiscountPercentage
	if price != nil {
		newPrice = *price
	}
	if pct != nil {
		newPct = *pct
	}
	if err := p.SetPricing(newPrice, newPct); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *fakeStore) Restock(_ context.Context, id string, quantity int) (*domain.Product, error) {
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	p.Stock += quantity
	return p, nil
}

func product(id string, price string, pct, stock int) domain.Product {
	p := domain.Product{ID: id, Name: "Product " + id, Stock: stock}
	_ = p.SetPricing(decimal.RequireFromString(price), pct)
	return p
}

func newTestMux(store Store) *http.ServeMux {
	h := NewHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", h.HandleListProducts)
	mux.HandleFunc("GET /products/featured", h.HandleListFeatured)
	mux.HandleFunc("GET /products/trending", h.HandleListTrending)
	mux.HandleFunc("GET /products/best-sellers", h.HandleListBestSellers)
	mux.HandleFunc("PATCH /products/{id}/flags", h.HandleSetFlags)
	mux.HandleFunc("GET /products/{id}", h.HandleGetProduct)
	mux.HandleFunc("POST /products", h.HandleCreateProduct)
	mux.HandleFunc("PATCH /products/{id}/pricing", h.HandleUpdatePricing)
	mux.HandleFunc("POST /products/{id}/restock", h.HandleRestock)
	return mux
}

func serve(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func TestHandler_HandleGetProduct(t *testing.T) {
	mux := newTestMux(newFakeStore(product("p1", "100.00", 20, 3)))

	t.Run("returns product with discounted price", func(t *testing.T) {
		rec := serve(mux, http.MethodGet, "/products/p1", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var got domain.Product
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !got.DiscountedPrice.Equal(decimal.RequireFromString("80")) {
			t.Errorf("expected discounted price 80, got %s", got.DiscountedPrice)
		}
		if got.Stock != 3 {
			t.Errorf("expected stock 3, got %d", got.Stock)
		}
	})

	t.Run("returns 404 for unknown product", func(t *testing.T) {
		rec := serve(mux, http.MethodGet, "/products/missing", "")

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleListProducts(t *testing.T) {
	t.Run("lists products", func(t *testing.T) {
		mux := newTestMux(newFakeStore(product("p1", "10", 0, 1), product("p2", "20", 0, 2)))

		rec := serve(mux, http.MethodGet, "/products", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var got []domain.Product
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 products, got %d", len(got))
		}
	})

	t.Run("store failure is 500", func(t *testing.T) {
		store := newFakeStore()
		store.err = errors.New("connection refused")
		mux := newTestMux(store)

		rec := serve(mux, http.MethodGet, "/products", "")

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleCreateProduct(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid product", `{"id":"p9","name":"Shawl","price":"499.99","discount_percentage":10,"stock":4}`, http.StatusCreated},
		{"numeric price", `{"name":"Shawl","price":120,"stock":1}`, http.StatusCreated},
		{"missing name", `{"price":"10","stock":1}`, http.StatusBadRequest},
		{"negative stock", `{"name":"Shawl","price":"10","stock":-1}`, http.StatusBadRequest},
		{"discount above 100", `{"name":"Shawl","price":"10","discount_percentage":101}`, http.StatusBadRequest},
		{"negative price", `{"name":"Shawl","price":"-1"}`, http.StatusBadRequest},
		{"duplicate id", `{"id":"p1","name":"Shawl","price":"10"}`, http.StatusConflict},
		{"malformed body", `{"name":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(newFakeStore(product("p1", "10", 0, 1)))

			rec := serve(mux, http.MethodPost, "/products", tt.body)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}

	t.Run("derives discounted price", func(t *testing.T) {
		mux := newTestMux(newFakeStore())

		rec := serve(mux, http.MethodPost, "/products", `{"name":"Shawl","price":"499.99","discount_percentage":10,"stock":4}`)

		var got domain.Product
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.ID == "" {
			t.Error("expected generated id")
		}
		if !got.DiscountedPrice.Equal(decimal.RequireFromString("449.99")) {
			t.Errorf("expected discounted price 449.99, got %s", got.DiscountedPrice)
		}
	})
}

func TestHandler_HandleUpdatePricing(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		status     int
		discounted string
	}{
		{"discount only", `{"discount_percentage":50}`, http.StatusOK, "50"},
		{"price only keeps discount", `{"price":"200"}`, http.StatusOK, "180"},
		{"remove discount", `{"discount_percentage":0}`, http.StatusOK, "100"},
		{"full discount", `{"discount_percentage":100}`, http.StatusOK, "0"},
		{"empty body", `{}`, http.StatusBadRequest, ""},
		{"invalid discount", `{"discount_percentage":-5}`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(newFakeStore(product("p1", "100", 10, 1)))

			rec := serve(mux, http.MethodPatch, "/products/p1/pricing", tt.body)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.discounted == "" {
				return
			}
			var got domain.Product
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if !got.DiscountedPrice.Equal(decimal.RequireFromString(tt.discounted)) {
				t.Errorf("expected discounted price %s, got %s", tt.discounted, got.DiscountedPrice)
			}
		})
	}

	t.Run("unknown product", func(t *testing.T) {
		mux := newTestMux(newFakeStore())

		rec := serve(mux, http.MethodPatch, "/products/nope/pricing", `{"price":"1"}`)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleRestock(t *testing.T) {
	store := newFakeStore(product("p1", "10", 0, 2))
	mux := newTestMux(store)

	rec := serve(mux, http.MethodPost, "/products/p1/restock", `{"quantity":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if store.products["p1"].Stock != 7 {
		t.Errorf("expected stock 7, got %d", store.products["p1"].Stock)
	}

	rec = serve(mux, http.MethodPost, "/products/p1/restock", `{"quantity":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for zero quantity, got %d", rec.Code)
	}

	rec = serve(mux, http.MethodPost, "/products/nope/restock", `{"quantity":1}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func decodeIDs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var got []domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestHandler_MerchandisingLists(t *testing.T) {
	kurta := product("p1", "10", 0, 1)
	kurta.IsFeatured = true
	kurta.SalesCount = 3
	saree := product("p2", "20", 0, 1)
	saree.IsTrending = true
	saree.SalesCount = 12
	dupatta := product("p3", "5", 0, 1)
	store := newFakeStore(kurta, saree, dupatta)
	mux := newTestMux(store)

	tests := []struct {
		path string
		want []string
	}{
		{"/products/featured", []string{"p1"}},
		{"/products?featured=true", []string{"p1"}},
		{"/products/trending", []string{"p2"}},
		{"/products/best-sellers", []string{"p2", "p1"}},
		{"/products/best-sellers?limit=1", []string{"p2"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(mux, http.MethodGet, tt.path, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}
			if got := decodeIDs(t, rec); strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("best sellers default to ten", func(t *testing.T) {
		serve(mux, http.MethodGet, "/products/best-sellers", "")
		if store.lastFilter.Limit != DefaultBestSellerLimit {
			t.Errorf("expected limit %d, got %d", DefaultBestSellerLimit, store.lastFilter.Limit)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		for _, limit := range []string{"0", "51", "ten"} {
			rec := serve(mux, http.MethodGet, "/products/best-sellers?limit="+limit, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("limit %s: expected status 400, got %d", limit, rec.Code)
			}
		}
	})

	t.Run("empty trending shelf is an empty list", func(t *testing.T) {
		rec := serve(newTestMux(newFakeStore(dupatta)), http.MethodGet, "/products/trending", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if got := decodeIDs(t, rec); len(got) != 0 {
			t.Errorf("expected no products, got %v", got)
		}
	})
}

func TestHandler_HandleSetFlags(t *testing.T) {
	store := newFakeStore(product("p1", "10", 0, 1))
	mux := newTestMux(store)

	rec := serve(mux, http.MethodPatch, "/products/p1/flags", `{"is_featured":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !store.products["p1"].IsFeatured || store.products["p1"].IsTrending {
		t.Errorf("expected only featured set, got %+v", store.products["p1"])
	}

	if rec := serve(mux, http.MethodPatch, "/products/p1/flags", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for empty update, got %d", rec.Code)
	}
	if rec := serve(mux, http.MethodPatch, "/products/nope/flags", `{"is_trending":true}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestHandler_LockContentionIsRetryable(t *testing.T) {
	tests := []struct {
		name, method, path, body string
	}{
		{"restock", http.MethodPost, "/products/p1/restock", `{"quantity":1}`},
		{"pricing", http.MethodPatch, "/products/p1/pricing", `{"discount_percentage":5}`},
		{"flags", http.MethodPatch, "/products/p1/flags", `{"is_featured":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(product("p1", "10", 0, 1))
			store.writeErr = fmt.Errorf("restock p1: %w", pgtx.Classify(&pq.Error{Code: "55P03"}))
			rec := serve(newTestMux(store), tt.method, tt.path, tt.body)

			if rec.Code != http.StatusServiceUnavailable {
				t.Errorf("expected status 503, got %d", rec.Code)
			}
			if rec.Header().Get("Retry-After") != "1" {
				t.Errorf("expected Retry-After 1, got %q", rec.Header().Get("Retry-After"))
			}
		})
	}

	t.Run("other store errors stay 500", func(t *testing.T) {
		store := newFakeStore(product("p1", "10", 0, 1))
		store.writeErr = errors.New("disk full")
		rec := serve(newTestMux(store), http.MethodPost, "/products/p1/restock", `{"quantity":1}`)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rec.Code)
		}
	})
}
