package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Authorizer checks a bearer credential. services.Gate satisfies it.
type Authorizer interface {
	Authorize(credential string) bool
}

// BearerAuth rejects requests whose "Authorization: Bearer <key>" header is
// missing or not accepted by auth. The credential is never logged.
func BearerAuth(auth Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.Authorize(BearerToken(c.GetHeader("Authorization"))) {
			c.Header("WWW-Authenticate", `Bearer realm="api"`)
			AbortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid or missing credential")
			return
		}
		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value. The
// scheme match is case-insensitive; anything else yields "".
func BearerToken(h string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
