package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"footprint/internal/pkg/logging"
)

func newAdminApp(t *testing.T, hash string, locked bool) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Get("/admin", AdminKeyAuth(hash, locked, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func adminStatus(t *testing.T, app *fiber.App, authorization string) int {
	t.Helper()
	req := httptest.NewRequest("GET", "/admin", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAdminKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	app := newAdminApp(t, string(hash), true)

	tests := []struct {
		name          string
		authorization string
		want          int
	}{
		{name: "valid key", authorization: "Bearer s3cret", want: fiber.StatusOK},
		{name: "wrong key", authorization: "Bearer nope", want: fiber.StatusUnauthorized},
		{name: "missing header", want: fiber.StatusUnauthorized},
		{name: "wrong scheme", authorization: "Basic czNjcmV0", want: fiber.StatusUnauthorized},
		{name: "empty bearer", authorization: "Bearer ", want: fiber.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, adminStatus(t, app, tc.authorization))
		})
	}
}

func TestAdminKeyAuthWithoutHash(t *testing.T) {
	t.Run("open when unlocked", func(t *testing.T) {
		assert.Equal(t, fiber.StatusOK, adminStatus(t, newAdminApp(t, "", false), ""))
	})

	t.Run("closed when locked", func(t *testing.T) {
		assert.Equal(t, fiber.StatusUnauthorized, adminStatus(t, newAdminApp(t, "", true), "Bearer anything"))
	})
}
