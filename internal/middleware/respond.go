package middleware

import (
	"github.com/gin-gonic/gin"
)

// abort ends the chain with the same envelope the handlers use for errors.
func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"code":    code,
		"message": message,
	})
}
