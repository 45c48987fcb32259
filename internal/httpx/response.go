// Package httpx writes the JSON envelope every endpoint answers with:
// {"success": bool, "message": string, "errors": [...]} plus endpoint data.
package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const internalMessage = "Internal Server Error"

func envelope(success bool, message string, data gin.H) gin.H {
	body := gin.H{"success": success}
	if message != "" {
		body["message"] = message
	}
	for k, v := range data {
		body[k] = v
	}
	return body
}

// OK writes a success body. Keys in data are merged at the top level.
func OK(c *gin.Context, status int, message string, data gin.H) {
	c.JSON(status, envelope(true, message, data))
}

// Fail writes an error body; reasons are omitted when empty.
func Fail(c *gin.Context, status int, message string, reasons []string) {
	var data gin.H
	if len(reasons) > 0 {
		data = gin.H{"errors": reasons}
	}
	c.JSON(status, envelope(false, message, data))
}

// Abort is Fail for middleware: it stops the handler chain.
func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope(false, message, nil))
}

// Internal answers 500. The error detail is only included when expose is set.
func Internal(c *gin.Context, err error, expose bool) {
	var data gin.H
	if expose && err != nil {
		data = gin.H{"error": err.Error()}
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, envelope(false, internalMessage, data))
}
