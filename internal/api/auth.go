package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	adminCookie = "admin_token"
	tokenParam  = "token"
	claimsKey   = "claims"
)

// Claims are the optional admin JWT claims.
type Claims struct {
	Sub string `json:"sub"`
	jwt.RegisteredClaims
}

// AdminAuth accepts the static admin token, or an HS256 JWT when jwtSecret is
// set, from the Authorization bearer, the admin_token cookie or the token
// query parameter, in that order. With neither credential configured every
// request gets 503.
func AdminAuth(adminToken, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken == "" && jwtSecret == "" {
			abortError(c, http.StatusServiceUnavailable, "admin access not configured")
			return
		}

		presented := credential(c)
		if presented == "" {
			abortError(c, http.StatusUnauthorized, "missing admin token")
			return
		}

		if adminToken != "" && constantTimeEqual(presented, adminToken) {
			c.Next()
			return
		}
		if jwtSecret != "" {
			if claims, err := parseJWT(presented, jwtSecret); err == nil {
				c.Set(claimsKey, claims)
				c.Next()
				return
			}
		}
		abortError(c, http.StatusUnauthorized, "invalid admin token")
	}
}

// CronAuth checks the shared cron secret carried in header.
func CronAuth(secret, header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			abortError(c, http.StatusServiceUnavailable, "cron trigger not configured")
			return
		}
		if !constantTimeEqual(c.GetHeader(header), secret) {
			abortError(c, http.StatusUnauthorized, "invalid cron secret")
			return
		}
		c.Next()
	}
}

func credential(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := c.Cookie(adminCookie); err == nil && cookie != "" {
		return cookie
	}
	return c.Query(tokenParam)
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

var errSigningMethod = errors.New("invalid signing method")

func parseJWT(raw, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errSigningMethod
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
