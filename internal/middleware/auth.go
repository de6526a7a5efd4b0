// Package middleware содержит HTTP middleware сервиса расчётов шопперов.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const shopperIDKey contextKey = "shopperID"

// ShopperClaims — утверждения токена сессии, выпускаемого внешним провайдером.
type ShopperClaims struct {
	ShopperID string `json:"shopperId"`
	jwt.RegisteredClaims
}

// AuthMiddleware выполняет проверку bearer-токена сессии.
// Выпуск токенов остаётся за внешним провайдером, здесь только проверка подписи.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{
		secretKey: []byte(secret),
	}
}

// Middleware проверяет заголовок Authorization и добавляет идентификатор
// шоппера в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := parseBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		shopperID, err := a.verifyToken(token)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), shopperIDKey, shopperID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func parseBearerToken(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (a *AuthMiddleware) verifyToken(tokenString string) (uuid.UUID, error) {
	claims := &ShopperClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))

	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secretKey, nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	if claims.ExpiresAt == nil || claims.ExpiresAt.Time.Before(time.Now()) {
		return uuid.Nil, errors.New("token expired")
	}

	id, err := uuid.Parse(claims.ShopperID)
	if err != nil {
		return uuid.Nil, errors.New("invalid shopper id in token")
	}

	return id, nil
}

// GetShopperIDFromContext извлекает идентификатор шоппера из контекста запроса.
func GetShopperIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(shopperIDKey).(uuid.UUID)
	return id, ok
}
