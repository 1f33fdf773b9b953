//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/bissquit/pizzeria/internal/domain"
	"github.com/bissquit/pizzeria/internal/testutil"
	"github.com/stretchr/testify/require"
)

const testPassword = "Passw0rd!"

// registerUser registers a fresh user and returns it.
func registerUser(t *testing.T, client *testutil.Client) domain.User {
	t.Helper()

	resp, err := client.POST("/api/user/register", map[string]string{
		"name":     "Test User",
		"email":    testutil.RandomEmail(),
		"password": testPassword,
		"phone":    "5551234567",
		"address":  "42 Test Street",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var user domain.User
	testutil.DecodeMessage(t, resp, &user)
	return user
}

// loggedInUser registers a user and returns a client authenticated as that user.
func loggedInUser(t *testing.T) (*testutil.Client, domain.User) {
	t.Helper()

	client := newTestClient(t)
	user := registerUser(t, client)
	client.LoginAs(t, user.Email, testPassword)
	return client, user
}

func adminClient(t *testing.T) *testutil.Client {
	t.Helper()

	client := newTestClient(t)
	client.LoginAs(t, adminEmail, adminPassword)
	return client
}

func pizza(name string, price float64) map[string]any {
	return map[string]any{"name": name, "price": price}
}

func orderBody(items ...map[string]any) map[string]any {
	return map[string]any{"items": items}
}

// createOrder creates an order for the client's user.
func createOrder(t *testing.T, client *testutil.Client, items ...map[string]any) domain.Order {
	t.Helper()

	resp, err := client.POST("/api/order/user/me", orderBody(items...))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var order domain.Order
	testutil.DecodeMessage(t, resp, &order)
	return order
}

func orderPath(orderID, user string) string {
	return fmt.Sprintf("/api/order/%s/user/%s", orderID, user)
}

type failure struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Details     json.RawMessage `json:"details"`
}

// decodeFailure decodes resp as a failure envelope.
func decodeFailure(t *testing.T, resp *http.Response) failure {
	t.Helper()

	env := testutil.DecodeEnvelope(t, resp)
	require.False(t, env.WasSuccessful, "expected failure envelope, got %s", env.Message)

	var f failure
	require.NoError(t, json.Unmarshal(env.Message, &f))
	return f
}
