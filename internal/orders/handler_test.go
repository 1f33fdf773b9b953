package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/pizzeria/internal/domain"
	"github.com/bissquit/pizzeria/internal/identity"
	"github.com/bissquit/pizzeria/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockUsers implements UserDirectory for testing.
type mockUsers struct {
	byEmail map[string]*domain.User
}

func (m *mockUsers) ResolvePrincipal(_ context.Context, p *domain.Principal) (*domain.User, error) {
	if p == nil || p.Email == "" {
		return nil, identity.ErrUnknownPrincipal
	}
	if u, ok := m.byEmail[p.Email]; ok {
		return u, nil
	}
	return nil, identity.ErrUnknownPrincipal
}

func (m *mockUsers) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	for _, u := range m.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

type envelope struct {
	WasSuccessful bool            `json:"wasSuccessful"`
	Message       json.RawMessage `json:"message"`
}

var (
	customer = &domain.Principal{UserID: 1, Email: "user@test.com", Roles: []domain.Role{domain.RoleUser}}
	admin    = &domain.Principal{UserID: 2, Email: "admin@test.com", Roles: []domain.Role{domain.RoleUser, domain.RoleAdmin}}
)

type testEnv struct {
	repo   *mockRepository
	router func(p *domain.Principal) http.Handler
}

func newTestEnv(policy string) *testEnv {
	repo := newMockRepository()
	users := &mockUsers{byEmail: map[string]*domain.User{
		"user@test.com":  {ID: 1, Email: "user@test.com"},
		"admin@test.com": {ID: 2, Email: "admin@test.com"},
	}}
	h := NewHandler(NewService(repo, Options{DeleteManyPolicy: policy}), users)

	return &testEnv{
		repo: repo,
		router: func(p *domain.Principal) http.Handler {
			r := chi.NewRouter()
			r.Use(httputil.LowercasePath)
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					next.ServeHTTP(w, req.WithContext(httputil.WithPrincipal(req.Context(), p)))
				})
			})
			h.RegisterRoutes(r)
			return r
		},
	}
}

func call(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func itemsBody(items ...map[string]any) map[string]any {
	return map[string]any{"items": items}
}

func pizza(name string, price float64) map[string]any {
	return map[string]any{"name": name, "price": price}
}

func TestHandler_CreateAndGetMine(t *testing.T) {
	env := newTestEnv("")
	router := env.router(customer)

	rec, created := call(t, router, http.MethodPost, "/order/user/me", itemsBody(pizza("Margherita", 9.5)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, created.WasSuccessful)

	var order domain.Order
	require.NoError(t, json.Unmarshal(created.Message, &order))
	assert.Equal(t, int64(1), order.UserID)
	assert.Equal(t, "/api/order/"+order.ID+"/user/me", rec.Header().Get("Location"))

	rec, _ = call(t, router, http.MethodGet, "/order/"+order.ID+"/user/me", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, router, http.MethodGet, "/Order/User/Me", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "paths are case-insensitive")
}

func TestHandler_ListMine_EmptyIsNotFound(t *testing.T) {
	env := newTestEnv("")

	rec, body := call(t, env.router(customer), http.MethodGet, "/order/user/me", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, body.WasSuccessful)
}

func TestHandler_UnknownPrincipalIsForbidden(t *testing.T) {
	env := newTestEnv("")
	ghost := &domain.Principal{UserID: 9, Email: "ghost@test.com"}

	rec, _ := call(t, env.router(ghost), http.MethodGet, "/order/user/me", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = call(t, env.router(&domain.Principal{UserID: 1}), http.MethodGet, "/order/user/me", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "missing email claim")
}

func TestHandler_Validation(t *testing.T) {
	env := newTestEnv("")
	router := env.router(customer)

	tests := []struct {
		name string
		body any
	}{
		{"no items", itemsBody()},
		{"empty name", itemsBody(pizza("", 9))},
		{"long name", itemsBody(pizza("Quattro Formaggi Extra Large With Everything On Top!", 9))},
		{"zero price", itemsBody(pizza("Margherita", 0))},
		{"price too high", itemsBody(pizza("Margherita", 10000))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := call(t, router, http.MethodPost, "/order/user/me", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, body.WasSuccessful)
		})
	}

	t.Run("empty bulk list", func(t *testing.T) {
		rec, _ := call(t, router, http.MethodPost, "/order/many/user/me", []any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_AdminRoutes(t *testing.T) {
	env := newTestEnv("")
	existing := env.repo.add(1, margherita)

	t.Run("customer forbidden", func(t *testing.T) {
		rec, _ := call(t, env.router(customer), http.MethodGet, "/order/user/1", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("list other user's orders", func(t *testing.T) {
		rec, _ := call(t, env.router(admin), http.MethodGet, "/order/user/1", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("get other user's order", func(t *testing.T) {
		rec, _ := call(t, env.router(admin), http.MethodGet, "/order/"+existing.ID+"/user/1", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("order scoped by owner", func(t *testing.T) {
		rec, _ := call(t, env.router(admin), http.MethodGet, "/order/"+existing.ID+"/user/2", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid user id", func(t *testing.T) {
		for _, id := range []string{"abc", "0", "-3"} {
			rec, _ := call(t, env.router(admin), http.MethodGet, "/order/user/"+id, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, id)
		}
	})

	t.Run("create for user", func(t *testing.T) {
		rec, _ := call(t, env.router(admin), http.MethodPost, "/order", map[string]any{
			"userId": 1,
			"items":  []any{pizza("Pepperoni", 11)},
		})
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Header().Get("Location"), "/user/1")
	})

	t.Run("create for unknown user", func(t *testing.T) {
		rec, _ := call(t, env.router(admin), http.MethodPost, "/order", map[string]any{
			"userId": 99,
			"items":  []any{pizza("Pepperoni", 11)},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_CreateMany_Partial(t *testing.T) {
	env := newTestEnv("")
	env.repo.failInserts = map[int]bool{0: true}

	rec, body := call(t, env.router(customer), http.MethodPost, "/order/many/user/me", []any{
		itemsBody(pizza("Margherita", 9.5)),
		itemsBody(pizza("Pepperoni", 11)),
	})

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	var orders []domain.Order
	require.NoError(t, json.Unmarshal(body.Message, &orders))
	assert.Len(t, orders, 1)
}

func TestHandler_CreateMany_AllFailed(t *testing.T) {
	env := newTestEnv("")
	env.repo.failInserts = map[int]bool{0: true}

	rec, body := call(t, env.router(customer), http.MethodPost, "/order/many/user/me", []any{
		itemsBody(pizza("Margherita", 9.5)),
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, body.WasSuccessful)
}

func TestHandler_Update(t *testing.T) {
	env := newTestEnv("")
	existing := env.repo.add(1, margherita)
	router := env.router(customer)

	rec, _ := call(t, router, http.MethodPut, "/order/"+existing.ID+"/user/me", itemsBody(pizza("Margherita", 9.5)))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unchanged items")

	rec, _ = call(t, router, http.MethodPut, "/order/"+existing.ID+"/user/me", itemsBody(pizza("Pepperoni", 11)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, router, http.MethodPut, "/order/missing/user/me", itemsBody(pizza("Pepperoni", 11)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_UpdateMany(t *testing.T) {
	env := newTestEnv("")
	a := env.repo.add(1, margherita)
	b := env.repo.add(1, margherita)
	router := env.router(customer)

	rec, body := call(t, router, http.MethodPut, "/order/many/user/me", []any{
		map[string]any{"orderId": a.ID, "order": itemsBody(pizza("Pepperoni", 11))},
		map[string]any{"orderId": b.ID, "order": itemsBody(pizza("Margherita", 9.5))},
	})
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.JSONEq(t, `{"modified":["`+a.ID+`"],"unmodified":["`+b.ID+`"]}`, string(body.Message))

	rec, body = call(t, router, http.MethodPut, "/order/many/user/me", []any{
		map[string]any{"orderId": a.ID, "order": itemsBody(pizza("Margherita", 9.5))},
		map[string]any{"orderId": "missing", "order": itemsBody(pizza("Margherita", 9.5))},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, string(body.Message), `"orderId":"missing"`)
}

func TestHandler_Delete(t *testing.T) {
	env := newTestEnv("")
	a := env.repo.add(1, margherita)
	router := env.router(customer)

	rec, _ := call(t, router, http.MethodDelete, "/order/"+a.ID+"/user/me", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, router, http.MethodDelete, "/order/"+a.ID+"/user/me", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_DeleteMany(t *testing.T) {
	t.Run("strict", func(t *testing.T) {
		env := newTestEnv(DeletePolicyStrict)
		a := env.repo.add(1, margherita)

		rec, _ := call(t, env.router(customer), http.MethodDelete, "/order/many/user/me", []string{a.ID, "missing"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("partial", func(t *testing.T) {
		env := newTestEnv(DeletePolicyPartial)
		a := env.repo.add(1, margherita)

		rec, body := call(t, env.router(customer), http.MethodDelete, "/order/many/user/me", []string{a.ID, "missing"})
		assert.Equal(t, http.StatusMultiStatus, rec.Code)
		assert.JSONEq(t, `{"requested":2,"deleted":1}`, string(body.Message))
	})

	t.Run("all removed", func(t *testing.T) {
		env := newTestEnv(DeletePolicyStrict)
		a := env.repo.add(2, margherita)
		b := env.repo.add(2, margherita)

		rec, _ := call(t, env.router(admin), http.MethodDelete, "/order/many/user/2", []string{a.ID, b.ID})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("empty id", func(t *testing.T) {
		env := newTestEnv("")

		rec, _ := call(t, env.router(customer), http.MethodDelete, "/order/many/user/me", []string{""})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
