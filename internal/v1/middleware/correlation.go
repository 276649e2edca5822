// Package middleware provides gin middleware for the ops router.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/logging"
)

// HeaderXCorrelationID is the header used to carry a request id across
// services.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID tags every ops request with a correlation id so probe
// and scrape failures can be matched to log lines. An incoming id is
// propagated; otherwise a new one is generated. The id is echoed in the
// response and stored on the request context for the loggers.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderXCorrelationID)
		if id == "" {
			id = uuid.NewString()
		}

		c.Header(HeaderXCorrelationID, id)
		c.Request = c.Request.WithContext(
			logging.WithCorrelationID(c.Request.Context(), id),
		)

		c.Next()
	}
}
