package integrations

import (
	"github.com/GriffinCanCode/tracekit/internal/trace"
	"github.com/gin-gonic/gin"
)

// Gin returns middleware that records each HTTP request as a request named
// "Controller/<METHOD> <route>"
func Gin(t Instrumenter) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx, req, done := t.StartRequest(c.Request.Context(), "Controller/"+c.Request.Method+" "+route)
		defer done()

		req.AddContext(
			trace.T(trace.TagPath, c.Request.URL.Path),
			trace.T(trace.TagHTTPMethod, c.Request.Method),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		req.AddTag(trace.TagHTTPStatus, c.Writer.Status())
		if len(c.Errors) > 0 {
			req.AddTag(trace.TagError, c.Errors.Last().Error())
		}
	}
}
