package httpx

import (
	"github.com/gin-gonic/gin"
)

// Parse binds path (uri tag), query (form tag) and, when a body is present,
// JSON (json tag) into req. Path and query binding errors are dropped: a
// missing or mistyped field is reported by the request's Validate instead.
func Parse(c *gin.Context, req interface{}) error {
	_ = c.ShouldBindUri(req)
	_ = c.ShouldBindQuery(req)

	if c.Request.ContentLength > 0 {
		return c.ShouldBindJSON(req)
	}
	return nil
}
