package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAdminTokenMiddleware(t *testing.T) {
	logger := zaptest.NewLogger(t)

	newApp := func(token string) *fiber.App {
		app := fiber.New()
		app.Get("/x", AdminTokenMiddleware(token, logger), func(c *fiber.Ctx) error {
			return c.SendString("ok")
		})
		return app
	}

	tests := []struct {
		name   string
		token  string
		header string
		status int
	}{
		{"bearer token", "s3cret", "Bearer s3cret", fiber.StatusOK},
		{"raw token", "s3cret", "s3cret", fiber.StatusOK},
		{"wrong token", "s3cret", "Bearer nope", fiber.StatusUnauthorized},
		{"missing header", "s3cret", "", fiber.StatusUnauthorized},
		{"disabled", "", "Bearer anything", fiber.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := newApp(tt.token).Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestOperatorContextMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(OperatorContextMiddleware(zaptest.NewLogger(t)))
	app.Get("/who", func(c *fiber.Ctx) error {
		return c.SendString(Operator(c))
	})

	for header, want := range map[string]string{"": "unknown", "alice": "alice"} {
		req := httptest.NewRequest("GET", "/who", nil)
		if header != "" {
			req.Header.Set("X-Operator", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, want, string(body))
	}
}
