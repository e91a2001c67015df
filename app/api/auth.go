package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "user_id"

type userClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// userAuthMiddleware verifies an HS256 bearer token and stores the user id
// from the user_id claim, or sub when user_id is absent.
func userAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || tokenString == "" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Authentication required",
				"message": "Provide a token in Authorization: Bearer <token>",
			})
			return
		}

		userID, err := verifyUserToken(secret, tokenString)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid authentication token",
				"message": err.Error(),
			})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func verifyUserToken(secret, tokenString string) (string, error) {
	claims := &userClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errors.New("token is invalid or expired")
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", errors.New("token has no user id")
	}
	return userID, nil
}
