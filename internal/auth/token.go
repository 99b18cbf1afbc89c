package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims is a deploy token's JWT payload: the username and the
// token-scope pair of spec §4.5.
type tokenClaims struct {
	Username string  `json:"username"`
	Group    *string `json:"group,omitempty"`
	Artifact *string `json:"artifact,omitempty"`
	jwt.RegisteredClaims
}

// TokenAuthenticator resolves the deploy-path identity of spec §6
// ("Client identity is derived from either HTTP Basic ... or a deploy
// token"), grounded on the teacher's internal/middleware/auth.go
// JWTAuth (Authorization-header bearer token, HS256, shared secret).
// It is deliberately the only identity provider this core ships: full
// OIDC/OAuth2/WebAuthn/MFA is an explicit Non-goal (spec §1).
type TokenAuthenticator struct {
	secret []byte
}

// NewTokenAuthenticator builds a TokenAuthenticator signing/verifying
// with secret.
func NewTokenAuthenticator(secret string) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret)}
}

// Authenticate implements deploy.Authenticator. HTTP Basic credentials
// are reported via isBasicAuth so the "Require token" middleware can
// reject them (spec §4.7); a bearer deploy token is parsed into its
// scope; no credentials at all resolve to an unscoped cookie-style
// Account, which Allows always permits (spec §4.5 "identity is not a
// token").
func (a *TokenAuthenticator) Authenticate(r *http.Request) (Account, bool, error) {
	if _, _, ok := r.BasicAuth(); ok {
		return Account{}, true, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return Account{Credential: CredentialCookie}, false, nil
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return Account{}, false, fmt.Errorf("parse deploy token: %w", err)
	}

	return Account{
		Username:   claims.Username,
		Credential: CredentialToken,
		Scope:      TokenScope{Group: claims.Group, Artifact: claims.Artifact},
	}, false, nil
}
