package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/feedsync/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ domain.CatalogClient = (*Client)(nil)

// sleepRecorder replaces real backoff sleeps in tests
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return ctx.Err()
}

func newTestClient(baseURL string, maxAttempts int) (*Client, *sleepRecorder) {
	client := NewClient(Options{
		BaseURL:           baseURL,
		AccessToken:       "shpat_test",
		RequestsPerSecond: 1000,
		MaxAttempts:       maxAttempts,
	})
	rec := &sleepRecorder{}
	client.sleep = rec.sleep
	return client, rec
}

func TestNewClient(t *testing.T) {
	client := NewClient(Options{BaseURL: "https://demo.myshopify.com/", AccessToken: "token"})

	assert.NotNil(t, client)
	assert.Equal(t, "https://demo.myshopify.com/admin/api/2024-07", client.apiBase)
	assert.Equal(t, "token", client.accessToken)
	assert.Equal(t, defaultMaxAttempts, client.maxAttempts)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.rateLimiter)
	assert.False(t, client.debug)
}

func TestSetDebug(t *testing.T) {
	client := NewClient(Options{BaseURL: "https://demo.myshopify.com"})

	assert.False(t, client.debug)

	client.SetDebug(true)
	assert.True(t, client.debug)

	client.SetDebug(false)
	assert.False(t, client.debug)
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1000 * time.Millisecond},
		{3, 2000 * time.Millisecond},
		{5, 8000 * time.Millisecond},
		{9, 8000 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			result := exponentialBackoff(500*time.Millisecond, 8*time.Second, tt.attempt)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestBackoffJitter(t *testing.T) {
	client := NewClient(Options{BaseURL: "https://demo.myshopify.com"})

	for i := 0; i < 50; i++ {
		d := client.backoff(2)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}

func TestRetryAfter(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, time.Duration(0), retryAfter(h))

	h.Set("Retry-After", "2")
	assert.Equal(t, 2*time.Second, retryAfter(h))

	h.Set("Retry-After", "1.5")
	assert.Equal(t, 1500*time.Millisecond, retryAfter(h))

	h.Set("Retry-After", "3600")
	assert.Equal(t, maxRetryAfter, retryAfter(h))

	h.Set("Retry-After", "soon")
	assert.Equal(t, time.Duration(0), retryAfter(h))
}

func TestDo_RetryBound(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"errors":"Exceeded 2 calls per second for api client."}`))
	}))
	defer server.Close()

	client, rec := newTestClient(server.URL, 3)

	_, err := client.ListLocations(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRetriesExhausted))
	assert.Equal(t, 3, calls, "gives up after the configured attempts")

	require.Len(t, rec.sleeps, 2, "no sleep after the final attempt")
	assert.Greater(t, rec.sleeps[1], rec.sleeps[0], "backoff increases")
}

func TestDo_HonorsRetryAfter(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "2.0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"locations":[{"id":11,"name":"Depo","active":true}]}`))
	}))
	defer server.Close()

	client, rec := newTestClient(server.URL, 5)

	locations, err := client.ListLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, int64(11), locations[0].ID)
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.sleeps)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"product":{"id":7,"title":"Loafer"}}`))
	}))
	defer server.Close()

	client, rec := newTestClient(server.URL, 5)

	product, err := client.GetProduct(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Loafer", product.Title)
	assert.Equal(t, 3, calls)
	assert.Len(t, rec.sleeps, 2)
}

func TestDo_ClientErrorsAreNotRetried(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		sentinel error
	}{
		{name: "not found", status: http.StatusNotFound, sentinel: domain.ErrNotFound},
		{name: "unauthorized", status: http.StatusUnauthorized, sentinel: domain.ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, sentinel: domain.ErrUnauthorized},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, sentinel: domain.ErrCatalogAPI},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"errors":"nope"}`))
			}))
			defer server.Close()

			client, rec := newTestClient(server.URL, 5)

			_, err := client.GetProduct(context.Background(), 1)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.sentinel))
			assert.True(t, errors.Is(err, domain.ErrCatalogAPI))
			assert.Equal(t, 1, calls)
			assert.Empty(t, rec.sleeps)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, "/products/1.json", apiErr.Path)
		})
	}
}

func TestDo_SendsAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))
		assert.Equal(t, "/admin/api/2024-07/locations.json", r.URL.Path)
		w.Write([]byte(`{"locations":[]}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, 1)
	_, err := client.ListLocations(context.Background())
	require.NoError(t, err)
}

func TestListProducts_FollowsLinkPagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "250", r.URL.Query().Get("limit"))
		switch r.URL.Query().Get("page_info") {
		case "":
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-07/products.json?limit=250&page_info=p2>; rel="next"`, server.URL))
			w.Write([]byte(`{"products":[{"id":1,"title":"A"},{"id":2,"title":"B"}]}`))
		case "p2":
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-07/products.json?limit=250&page_info=p1>; rel="previous"`, server.URL))
			w.Write([]byte(`{"products":[{"id":3,"title":"C"}]}`))
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page_info"))
		}
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, 1)

	products, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, int64(3), products[2].ID)
}

func TestNextLink(t *testing.T) {
	h := http.Header{}
	assert.Empty(t, nextLink(h))

	h.Set("Link", `<https://a/products.json?page_info=x>; rel="previous", <https://a/products.json?page_info=y>; rel="next"`)
	assert.Equal(t, "https://a/products.json?page_info=y", nextLink(h))
}

func TestCreateVariant(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/admin/api/2024-07/products/9/variants.json", r.URL.Path)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"variant":{"id":100,"product_id":9,"option1":"SIYAH","option2":"41","inventory_item_id":500}}`))
		}))
		defer server.Close()

		client, _ := newTestClient(server.URL, 1)
		result, err := client.CreateVariant(context.Background(), 9, &domain.RemoteVariant{Option1: "SIYAH", Option2: "41"})
		require.NoError(t, err)
		assert.False(t, result.AlreadyExists)
		require.NotNil(t, result.Variant)
		assert.Equal(t, int64(500), result.Variant.InventoryItemID)
	})

	t.Run("duplicate is an outcome", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"errors":{"base":["The variant 'SIYAH / 41' already exists."]}}`))
		}))
		defer server.Close()

		client, _ := newTestClient(server.URL, 1)
		result, err := client.CreateVariant(context.Background(), 9, &domain.RemoteVariant{Option1: "SIYAH", Option2: "41"})
		require.NoError(t, err)
		assert.True(t, result.AlreadyExists)
		assert.Nil(t, result.Variant)
	})
}

func TestUpdateVariant_SendsPatchOnly(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/admin/api/2024-07/variants/100.json", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		w.Write([]byte(`{"variant":{"id":100,"price":"129.90"}}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, 1)
	_, err := client.UpdateVariant(context.Background(), 100, map[string]interface{}{"id": 100, "price": "129.90"})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"variant": map[string]interface{}{"id": float64(100), "price": "129.90"},
	}, body)
}

func TestSetInventoryLevel(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-07/inventory_levels/set.json", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"inventory_level":{}}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, 1)
	require.NoError(t, client.SetInventoryLevel(context.Background(), 500, 11, 4))

	assert.Equal(t, float64(500), body["inventory_item_id"])
	assert.Equal(t, float64(11), body["location_id"])
	assert.Equal(t, float64(4), body["available"])
}

func TestPublications(t *testing.T) {
	t.Run("lists publications and publishes", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/admin/api/2024-07/graphql.json", r.URL.Path)
			var req struct {
				Query     string                 `json:"query"`
				Variables map[string]interface{} `json:"variables"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			if req.Variables == nil {
				w.Write([]byte(`{"data":{"publications":{"edges":[
					{"node":{"id":"gid://shopify/Publication/1","name":"Online Store"}},
					{"node":{"id":"gid://shopify/Publication/2","name":"Point of Sale"}}]}}}`))
				return
			}
			assert.Equal(t, "gid://shopify/Product/9", req.Variables["id"])
			w.Write([]byte(`{"data":{"publishablePublish":{"userErrors":[]}}}`))
		}))
		defer server.Close()

		client, _ := newTestClient(server.URL, 1)
		pubs, err := client.ListPublications(context.Background())
		require.NoError(t, err)
		require.Len(t, pubs, 2)
		assert.Equal(t, domain.Publication{ID: "gid://shopify/Publication/1", Name: "Online Store"}, pubs[0])

		require.NoError(t, client.Publish(context.Background(), 9, pubs[0].ID))
	})

	t.Run("access denied is unauthorized", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"errors":[{"message":"Access denied for publishablePublish field.","extensions":{"code":"ACCESS_DENIED"}}]}`))
		}))
		defer server.Close()

		client, _ := newTestClient(server.URL, 1)
		err := client.Publish(context.Background(), 9, "gid://shopify/Publication/1")
		assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	})

	t.Run("user errors fail the publish", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"publishablePublish":{"userErrors":[{"field":["id"],"message":"Product not found"}]}}}`))
		}))
		defer server.Close()

		client, _ := newTestClient(server.URL, 1)
		err := client.Publish(context.Background(), 9, "gid://shopify/Publication/1")
		assert.True(t, errors.Is(err, domain.ErrCatalogAPI))
		assert.Contains(t, err.Error(), "Product not found")
	})
}
