// middleware/auth.go
package middleware

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const OperatorLocalKey = "operator"

// OperatorContextMiddleware records who triggered an admin action. The
// X-Operator header is optional; unnamed callers are logged as "unknown".
func OperatorContextMiddleware(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		operator := c.Get("X-Operator")
		if operator == "" {
			operator = "unknown"
		}
		c.Locals(OperatorLocalKey, operator)

		logger.Info("👤 [OPERATOR] Admin request",
			zap.String("operator", operator),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()))
		return c.Next()
	}
}

// Operator returns the caller recorded by OperatorContextMiddleware.
func Operator(c *fiber.Ctx) string {
	if op, ok := c.Locals(OperatorLocalKey).(string); ok {
		return op
	}
	return "unknown"
}
