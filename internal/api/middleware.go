package api

import (
	"net/http"
	"strings"

	"storefront/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionKey     = "session"
	cartSessionKey = "cartSession"

	CartSessionHeader = "X-Cart-Session"
	CartSessionCookie = "cart_session"
	IdempotencyHeader = "Idempotency-Key"
)

// authenticate resolves an optional bearer token. Requests without a token
// continue anonymously; a bad token is rejected.
func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			token, ok = strings.CutPrefix(header, "bearer ")
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
				Error:    "malformed Authorization header",
				Redirect: loginRedirect,
			})
			return
		}

		sess, err := h.auth.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			h.writeError(c, err)
			c.Abort()
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

// cartSession makes sure every cart request carries a cart session id and
// echoes it back so clients without cookies can keep it
func (h *Handler) cartSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(CartSessionHeader))
		if id == "" {
			if cookie, err := c.Cookie(CartSessionCookie); err == nil {
				id = cookie
			}
		}
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(cartSessionKey, id)
		c.Header(CartSessionHeader, id)
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(CartSessionCookie, id, int(h.cartTTL.Seconds()), "/", "", false, true)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*session.Session)
	return sess
}

func cartSessionID(c *gin.Context) string {
	return c.GetString(cartSessionKey)
}
