package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/talx-hub/credit-ledger/internal/model/member"
	"github.com/talx-hub/credit-ledger/internal/serviceerrs"
)

const TokenExpire = 3 * time.Hour

const CookieName = "jwt-token"

// Claims carry the Identity Provider triple. The service trusts it as given
// and never re-authenticates.
type Claims struct {
	jwt.RegisteredClaims
	UserID         string
	OrganizationID string
	Role           member.Role
}

func buildJWTString(claims Claims, secret []byte) (string, error) {
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(TokenExpire))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("JWT signing: %w", err)
	}
	return tokenString, nil
}

func Authenticate(claims Claims, secret []byte) (http.Cookie, error) {
	jwtString, err := buildJWTString(claims, secret)
	if err != nil {
		return http.Cookie{}, fmt.Errorf("authentication failed: %w", err)
	}
	return http.Cookie{
		Name:     CookieName,
		Value:    jwtString,
		Path:     "",
		MaxAge:   0,
		HttpOnly: true,
	}, nil
}

func CheckToken(tokenString string, secret []byte) (Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		})
	if err != nil {
		return Claims{}, fmt.Errorf("failed to parse token %w", err)
	}
	tokenExpired := claims.ExpiresAt.Before(time.Now())
	if tokenExpired {
		return Claims{}, serviceerrs.ErrTokenExpired
	}

	return *claims, nil
}
