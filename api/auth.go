package api

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"kanban-api/domain"
)

const (
	envAuthTestMode  = "AUTH0_TEST_MODE"
	envTestJWTSecret = "TEST_JWT_SECRET"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

// Auth validates incoming JWT tokens and extracts the caller's identity.
// In test mode tokens are verified with a shared HS256 secret instead of
// the identity provider's JWKS.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte

	parser *jwt.Parser
}

// NewAuth creates a new Auth instance.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	a := &Auth{JWKS: jwks, Audience: audience, Issuer: issuer}

	if os.Getenv(envAuthTestMode) == "1" {
		secret := os.Getenv(envTestJWTSecret)
		if secret == "" {
			panic("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
		a.TestMode = true
		a.TestSecret = []byte(secret)
	}

	if a.TestMode {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

// IdentityFromAuthHeader parses the Authorization header and returns the
// authenticated identity.
func (a *Auth) IdentityFromAuthHeader(h string) (domain.Identity, error) {
	trimmed := strings.TrimSpace(h)
	if trimmed == "" {
		return domain.Identity{}, errMissingAuthorization
	}
	token, ok := strings.CutPrefix(trimmed, "Bearer ")
	if !ok || token == "" {
		return domain.Identity{}, errBadAuthorization
	}
	if strings.Count(token, ".") != 2 {
		return domain.Identity{}, errBadAuthorization
	}
	return a.identityFromToken(token)
}

func (a *Auth) identityFromToken(tokenStr string) (domain.Identity, error) {
	var parsedToken *jwt.Token
	var err error
	if a.TestMode {
		parsedToken, err = a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.TestSecret, nil
		})
	} else {
		if a.JWKS == nil {
			return domain.Identity{}, errors.New("jwks not configured")
		}
		parsedToken, err = a.parser.Parse(tokenStr, a.JWKS.Keyfunc)
	}
	if err != nil {
		return domain.Identity{}, err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return domain.Identity{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return domain.Identity{}, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return domain.Identity{}, errors.New("token used before issued")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return domain.Identity{}, errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return domain.Identity{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return domain.Identity{}, errors.New("missing sub")
	}

	ident := domain.Identity{UserID: sub}
	if name, ok := claims["name"].(string); ok {
		ident.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		ident.Email = email
	}
	return ident, nil
}
