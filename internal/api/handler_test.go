package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	router *gin.Engine
	repo   *fakeRepo
	token  string
}

func newTestServer(t *testing.T, limit service.RateLimit, ready map[string]Pinger) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newFakeRepo()
	rc := newTestRedis(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	auth := service.NewAuthService("admin", string(hash), "test-secret", time.Hour)
	token, _, err := auth.Login(context.Background(), "admin", "s3cret")
	require.NoError(t, err)

	orders := service.NewOrderService(repo, rc, nil, time.Hour)
	handler := NewHandler(Services{
		Catalog:   service.NewCatalogService(repo, rc, time.Minute),
		Taxonomy:  service.NewTaxonomyService(repo, rc, time.Minute),
		Orders:    orders,
		Messages:  service.NewMessageService(repo, rc, nil, limit),
		Cart:      service.NewCartService(repo, rc, orders, time.Hour),
		Dashboard: service.NewDashboardService(repo, repo, repo, 3),
		Auth:      auth,
		Ready:     ready,
	})

	router := gin.New()
	handler.SetupRoutes(router)
	return &testServer{router: router, repo: repo, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) admin() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.token}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func orderBody(productID string, price, qty, total int) gin.H {
	return gin.H{
		"items":         []gin.H{{"id": productID, "name": productID, "price": price, "quantity": qty}},
		"total":         total,
		"customerName":  "Ana",
		"customerPhone": "555-0001",
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.Validationf("bad"), http.StatusBadRequest},
		{&models.StockError{ProductID: "P1"}, http.StatusBadRequest},
		{models.ErrUnauthorized, http.StatusUnauthorized},
		{models.NotFoundf("order %s", "o1"), http.StatusNotFound},
		{fmt.Errorf("x: %w", models.ErrInvalidTransition), http.StatusConflict},
		{models.ErrDuplicateName, http.StatusConflict},
		{&models.MissingProductsError{ProductIDs: []string{"P"}}, http.StatusConflict},
		{models.ErrRateLimited, http.StatusTooManyRequests},
		{models.ErrMediaDisabled, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, _ := statusFor(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
	}
}

func TestProbes(t *testing.T) {
	t.Run("Health_OK", func(t *testing.T) {
		s := newTestServer(t, service.RateLimit{}, nil)
		w := s.do(t, http.MethodGet, "/health", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Ready_ReportsFailingDependency", func(t *testing.T) {
		s := newTestServer(t, service.RateLimit{}, map[string]Pinger{
			"postgres": pingFunc(func(context.Context) error { return nil }),
			"redis":    pingFunc(func(context.Context) error { return errors.New("connection refused") }),
		})
		w := s.do(t, http.MethodGet, "/ready", nil, nil)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		failed := decode(t, w)["failed"].(map[string]interface{})
		assert.Contains(t, failed, "redis")
		assert.NotContains(t, failed, "postgres")
	})
}

func TestCatalogRoutes(t *testing.T) {
	t.Run("GetProduct_NotFound", func(t *testing.T) {
		s := newTestServer(t, service.RateLimit{}, nil)
		w := s.do(t, http.MethodGet, "/api/v1/products/missing", nil, nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Not found", body["error"])
		assert.NotEmpty(t, body["details"])
	})

	t.Run("CreateProduct_RequiresAdmin", func(t *testing.T) {
		s := newTestServer(t, service.RateLimit{}, nil)
		product := gin.H{"name": "Cable", "price": 5, "image": "img", "category": "cables", "stock": 2}

		w := s.do(t, http.MethodPost, "/api/v1/admin/products", product, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = s.do(t, http.MethodPost, "/api/v1/admin/products", product, map[string]string{"Authorization": "Bearer forged"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = s.do(t, http.MethodPost, "/api/v1/admin/products", product, s.admin())
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, true, decode(t, w)["available"])
	})

	t.Run("SetAvailability_EmptyBodyFlips", func(t *testing.T) {
		s := newTestServer(t, service.RateLimit{}, nil)
		s.repo.addProduct("P1", 10, 4)

		w := s.do(t, http.MethodPost, "/api/v1/admin/products/P1/availability", nil, s.admin())
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, decode(t, w)["available"])

		w = s.do(t, http.MethodPost, "/api/v1/admin/products/P1/availability", gin.H{"available": true}, s.admin())
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decode(t, w)["available"])
	})

	t.Run("ListProducts_RejectsBadFilter", func(t *testing.T) {
		s := newTestServer(t, service.RateLimit{}, nil)
		w := s.do(t, http.MethodGet, "/api/v1/products?available=maybe", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Uploads_DisabledWithoutCloudinary", func(t *testing.T) {
		s := newTestServer(t, service.RateLimit{}, nil)
		w := s.do(t, http.MethodPost, "/api/v1/admin/uploads", nil, s.admin())
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		w = s.do(t, http.MethodDelete, "/api/v1/admin/uploads/storefront/abc", nil, s.admin())
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestCartRoutes(t *testing.T) {
	s := newTestServer(t, service.RateLimit{}, nil)
	s.repo.addProduct("P1", 10, 1)

	w := s.do(t, http.MethodPost, "/api/v1/cart/items", gin.H{"productId": "P1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	session := w.Header().Get(cartSessionHeader)
	require.NotEmpty(t, session)
	assert.Equal(t, true, decode(t, w)["added"])

	headers := map[string]string{cartSessionHeader: session}
	w = s.do(t, http.MethodPost, "/api/v1/cart/items", gin.H{"productId": "P1"}, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["added"])

	w = s.do(t, http.MethodPost, "/api/v1/cart/checkout", gin.H{"customerName": "Ana", "customerPhone": "555"}, headers)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "pending", decode(t, w)["status"])
	assert.Equal(t, 0, s.repo.stockOf("P1"))

	w = s.do(t, http.MethodGet, "/api/v1/cart", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["count"])

	w = s.do(t, http.MethodPatch, "/api/v1/cart/items/P1", gin.H{"quantity": 2}, headers)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrderRoutes(t *testing.T) {
	t.Run("CreateOrder_InsufficientStockIs400", func(t *testing.T) {
		s := newTestServer(t, service.RateLimit{}, nil)
		s.repo.addProduct("P1", 10, 2)

		w := s.do(t, http.MethodPost, "/api/v1/orders", orderBody("P1", 10, 3, 30), nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Insufficient stock", decode(t, w)["error"])
		assert.Equal(t, 2, s.repo.stockOf("P1"))
	})

	t.Run("CreateOrder_TotalMismatchIs400", func(t *testing.T) {
		s := newTestServer(t, service.RateLimit{}, nil)
		s.repo.addProduct("P1", 10, 5)

		w := s.do(t, http.MethodPost, "/api/v1/orders", orderBody("P1", 10, 1, 99), nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 5, s.repo.stockOf("P1"))
	})

	t.Run("AdminLifecycle_CancelRestoresThenRejectsLeavingTerminal", func(t *testing.T) {
		s := newTestServer(t, service.RateLimit{}, nil)
		s.repo.addProduct("P1", 10, 5)

		w := s.do(t, http.MethodPost, "/api/v1/orders", orderBody("P1", 10, 3, 30), map[string]string{idempotencyHeader: "k1"})
		require.Equal(t, http.StatusCreated, w.Code)
		id := decode(t, w)["id"].(string)
		assert.Equal(t, 2, s.repo.stockOf("P1"))

		w = s.do(t, http.MethodPost, "/api/v1/orders", orderBody("P1", 10, 3, 30), map[string]string{idempotencyHeader: "k1"})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, id, decode(t, w)["id"])

		w = s.do(t, http.MethodPatch, "/api/v1/admin/orders/"+id, gin.H{"status": "cancelled"}, s.admin())
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 5, s.repo.stockOf("P1"))

		w = s.do(t, http.MethodPost, "/api/v1/admin/orders/"+id+"/advance", nil, s.admin())
		assert.Equal(t, http.StatusConflict, w.Code)

		w = s.do(t, http.MethodPost, "/api/v1/admin/orders/"+id+"/archive", nil, s.admin())
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, decode(t, w)["archivedAt"])

		w = s.do(t, http.MethodGet, "/api/v1/admin/orders/"+id, nil, s.admin())
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("UpdateStatus_RequiresStatus", func(t *testing.T) {
		s := newTestServer(t, service.RateLimit{}, nil)
		w := s.do(t, http.MethodPatch, "/api/v1/admin/orders/x", gin.H{}, s.admin())
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMessageRoutes(t *testing.T) {
	s := newTestServer(t, service.RateLimit{Limit: 2, Window: time.Minute}, nil)
	form := gin.H{"name": "Luis", "email": "l@example.com", "phone": "555", "service": "Redes", "message": "Hola"}

	var id string
	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/messages", form, nil)
		require.Equal(t, http.StatusCreated, w.Code)
		id = decode(t, w)["id"].(string)
	}
	w := s.do(t, http.MethodPost, "/api/v1/messages", form, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/admin/messages/"+id+"/archive", nil, s.admin())
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPatch, "/api/v1/admin/messages/"+id, gin.H{"status": "read"}, s.admin())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "read", decode(t, w)["status"])

	w = s.do(t, http.MethodGet, "/api/v1/admin/dashboard", nil, s.admin())
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRoutes(t *testing.T) {
	s := newTestServer(t, service.RateLimit{}, nil)

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "admin", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "admin", "password": "s3cret"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	token := decode(t, w)["token"].(string)

	w = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", decode(t, w)["username"])
}
