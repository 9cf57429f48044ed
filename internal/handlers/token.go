package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 24 * time.Hour

var errNoBearer = errors.New("missing bearer token")

// tokenSigner issues and verifies HS256 access tokens whose subject is a
// user id.
type tokenSigner struct {
	key    []byte
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

func newTokenSigner(secret string, ttl time.Duration) *tokenSigner {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &tokenSigner{
		key: []byte(secret),
		ttl: ttl,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
		now: time.Now,
	}
}

// Issue signs a token for userID and reports when it expires.
func (s *tokenSigner) Issue(userID string) (string, time.Time, error) {
	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Subject verifies raw and returns the user id it was issued for.
func (s *tokenSigner) Subject(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}); err != nil {
		return "", err
	}
	subject, _ := claims.GetSubject()
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// token's subject in the request context.
func (s *tokenSigner) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err == nil {
			var subject string
			if subject, err = s.Subject(raw); err == nil {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextSubjectKey, subject)))
				return
			}
		}
		writeError(w, http.StatusUnauthorized, "unauthorized")
	})
}

func bearerToken(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errNoBearer
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", errNoBearer
	}
	return token, nil
}
