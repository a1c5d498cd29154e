package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type correlationCtxKey struct{}

const correlationLocal = "correlation_id"

// correlationHeaders are honoured in order; the first non-empty value wins so
// an upstream proxy keeps its identifier across the pipeline.
var correlationHeaders = [...]string{"X-Correlation-ID", "X-Request-ID"}

// CorrelationID tags every request with an identifier that follows it into
// the request log, minting one when the caller sent none. The identifier is
// echoed back in the X-Correlation-ID response header.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id string
		for _, header := range correlationHeaders {
			if id = strings.TrimSpace(c.Get(header)); id != "" {
				break
			}
		}
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(correlationLocal, id)
		c.Set("X-Correlation-ID", id)
		c.SetUserContext(context.WithValue(c.Context(), correlationCtxKey{}, id))

		return c.Next()
	}
}

// GetCorrelationID returns the identifier bound to the active request, or
// empty when the middleware did not run.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(correlationLocal).(string); ok {
		return id
	}
	return CorrelationIDFromContext(c.Context())
}

// CorrelationIDFromContext extracts the identifier from a detached context,
// e.g. inside work that outlives the request.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationCtxKey{}).(string)
	return id
}
