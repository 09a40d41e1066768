package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/ordersaga/framework/adapters/transport"
)

// UserIDHeader заголовок с идентификатором пользователя, проверенным gateway
const UserIDHeader = "X-Authenticated-User-ID"

const userIDKey = "authenticated_user_id"

// RequireUserID принимает идентичность из заголовка как есть, gateway ее уже проверил
func RequireUserID() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if raw == "" {
			transport.WriteDetail(c, http.StatusBadRequest, "X-Authenticated-User-ID header is required")
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			transport.WriteDetail(c, http.StatusBadRequest, "Invalid User ID format. Must be an integer")
			return
		}
		if userID <= 0 {
			transport.WriteDetail(c, http.StatusBadRequest, "User ID must be greater than 0")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func authenticatedUserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
