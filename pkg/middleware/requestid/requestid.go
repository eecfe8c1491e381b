package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderName is the canonical request ID header, echoed on every response so
// clients can quote it when reporting problems.
const HeaderName = "X-Request-ID"

const ctxKey = "request_id"

// Middleware propagates the caller's request ID, minting a fresh UUID when
// the header is absent or implausibly long.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderName)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(ctxKey, id)
		c.Header(HeaderName, id)
		c.Next()
	}
}

// Value returns the request ID for the current request, empty when the
// middleware did not run.
func Value(c *gin.Context) string {
	return c.GetString(ctxKey)
}
