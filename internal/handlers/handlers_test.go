package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query  string
		offset int
		limit  int
		err    bool
	}{
		{query: "", offset: 0, limit: 0},
		{query: "page=1", offset: 0, limit: 20},
		{query: "page=3", offset: 40, limit: 20},
		{query: "limit=5", offset: 0, limit: 5},
		{query: "page=2&limit=5", offset: 5, limit: 5},
		{query: "page=2&limit=500", offset: 100, limit: 100},
		{query: "page=0", err: true},
		{query: "page=abc", err: true},
		{query: "limit=-1", err: true},
		{query: "limit=", offset: 0, limit: 0},
		{query: "page=92233720368547760&limit=100", err: true},
		{query: "page=9223372036854775807", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/recipes?"+tt.query, nil)
			offset, limit, err := parsePagination(r)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.offset, offset)
			require.Equal(t, tt.limit, limit)
		})
	}
}

func TestIngredientListAcceptsArrayOrString(t *testing.T) {
	var fromArray RecipeRequest
	require.NoError(t, json.Unmarshal([]byte(`{"ingredients":[" eggs ","","milk"]}`), &fromArray))
	require.Equal(t, IngredientList{"eggs", "milk"}, fromArray.Ingredients)

	var fromString RecipeRequest
	require.NoError(t, json.Unmarshal([]byte(`{"ingredients":"eggs, milk ,flour"}`), &fromString))
	require.Equal(t, IngredientList{"eggs", "milk", "flour"}, fromString.Ingredients)

	var absent RecipeRequest
	require.NoError(t, json.Unmarshal([]byte(`{"title":"x"}`), &absent))
	require.Nil(t, absent.Ingredients)

	var bad RecipeRequest
	require.Error(t, json.Unmarshal([]byte(`{"ingredients":42}`), &bad))
}

func TestBearerToken(t *testing.T) {
	tests := map[string]bool{
		"":              false,
		"Bearer":        false,
		"Bearer   ":     false,
		"Basic abc":     false,
		"Bearer abc":    true,
		"bearer abc":    true,
		"Bearer  abc  ": true,
	}
	for header, ok := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		token, err := bearerToken(r)
		if !ok {
			require.Error(t, err, header)
			continue
		}
		require.NoError(t, err, header)
		require.Equal(t, "abc", token)
	}
}

func TestTokenSignerSubject(t *testing.T) {
	signer := newTokenSigner("secret", time.Hour)

	valid, expiresAt, err := signer.Issue("user-1")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 2*time.Second)
	subject, err := signer.Subject(valid)
	require.NoError(t, err)
	require.Equal(t, "user-1", subject)

	_, err = newTokenSigner("other", time.Hour).Subject(valid)
	require.Error(t, err)

	stale := newTokenSigner("secret", time.Hour)
	stale.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := stale.Issue("user-1")
	require.NoError(t, err)
	_, err = signer.Subject(expired)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)

	key := []byte("secret")
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(key)
	require.NoError(t, err)
	_, err = signer.Subject(noSubject)
	require.Error(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "user-1",
	}).SignedString(key)
	require.NoError(t, err)
	_, err = signer.Subject(noExpiry)
	require.Error(t, err)

	otherAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(key)
	require.NoError(t, err)
	_, err = signer.Subject(otherAlg)
	require.Error(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = signer.Subject(unsigned)
	require.Error(t, err)
}

func TestTokenMiddlewareRejectsMissingToken(t *testing.T) {
	called := false
	h := newTokenSigner("secret", time.Hour).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/recipes", nil))

	require.False(t, called)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"message":"unauthorized"}`, rec.Body.String())
}

func TestTokenMiddlewareInjectsSubject(t *testing.T) {
	signer := newTokenSigner("secret", time.Hour)
	token, _, err := signer.Issue("user-7")
	require.NoError(t, err)

	var got string
	h := signer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = userIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/recipes", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "user-7", got)
}
