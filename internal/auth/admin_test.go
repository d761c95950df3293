package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-atelier/internal/common"
)

func newTokens(t *testing.T) *AdminTokens {
	t.Helper()
	tokens, err := NewAdminTokens("test-secret", "atelier-admin")
	require.NoError(t, err)
	return tokens
}

func TestAdminTokenRoundTrip(t *testing.T) {
	tokens := newTokens(t)
	signed, err := tokens.Sign("ops@atelier.test", time.Minute)
	require.NoError(t, err)

	subject, err := tokens.Parse(signed)
	require.NoError(t, err)
	require.Equal(t, "ops@atelier.test", subject)
}

func TestAdminTokenRejectsMissingRole(t *testing.T) {
	tokens := newTokens(t)
	now := time.Now()
	tok, err := jwt.NewBuilder().Subject("customer").Issuer("atelier-admin").IssuedAt(now).Expiration(now.Add(time.Minute)).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("test-secret")))
	require.NoError(t, err)

	_, err = tokens.Parse(string(signed))
	require.ErrorIs(t, err, ErrForbidden)
}

func TestAdminTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	other, err := NewAdminTokens("other-secret", "atelier-admin")
	require.NoError(t, err)
	signed, err := other.Sign("ops", time.Minute)
	require.NoError(t, err)
	_, err = newTokens(t).Parse(signed)
	require.Error(t, err)

	tokens := newTokens(t)
	tokens.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := tokens.Sign("ops", time.Minute)
	require.NoError(t, err)
	tokens.now = time.Now
	_, err = tokens.Parse(expired)
	require.Error(t, err)
}

func TestRequireAdminMiddleware(t *testing.T) {
	tokens := newTokens(t)
	var seen string
	handler := tokens.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = common.AdminSubject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/promotion-codes", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	signed, err := tokens.Sign("ops", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/promotion-codes", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "ops", seen)
}

func signRaw(t *testing.T, alg jwa.SignatureAlgorithm, build func(*jwt.Builder) *jwt.Builder) string {
	t.Helper()
	tok, err := build(jwt.NewBuilder()).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(alg, []byte("test-secret")))
	require.NoError(t, err)
	return string(signed)
}

func TestAdminTokenClaimPolicy(t *testing.T) {
	tokens := newTokens(t)
	now := time.Now()

	cases := []struct {
		name  string
		alg   jwa.SignatureAlgorithm
		build func(*jwt.Builder) *jwt.Builder
	}{
		{"wrong issuer", jwa.HS256, func(b *jwt.Builder) *jwt.Builder {
			return b.Subject("ops").Issuer("storefront").Expiration(now.Add(time.Minute)).Claim(roleClaim, RoleAdmin)
		}},
		{"no expiry", jwa.HS256, func(b *jwt.Builder) *jwt.Builder {
			return b.Subject("ops").Issuer("atelier-admin").Claim(roleClaim, RoleAdmin)
		}},
		{"no subject", jwa.HS256, func(b *jwt.Builder) *jwt.Builder {
			return b.Issuer("atelier-admin").Expiration(now.Add(time.Minute)).Claim(roleClaim, RoleAdmin)
		}},
		{"other algorithm", jwa.HS512, func(b *jwt.Builder) *jwt.Builder {
			return b.Subject("ops").Issuer("atelier-admin").Expiration(now.Add(time.Minute)).Claim(roleClaim, RoleAdmin)
		}},
		{"not yet valid", jwa.HS256, func(b *jwt.Builder) *jwt.Builder {
			return b.Subject("ops").Issuer("atelier-admin").NotBefore(now.Add(time.Hour)).Expiration(now.Add(2 * time.Hour)).Claim(roleClaim, RoleAdmin)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tokens.Parse(signRaw(t, tc.alg, tc.build))
			require.Error(t, err)
			require.NotErrorIs(t, err, ErrForbidden)
		})
	}
}

func TestAdminTokenAcceptsRoleList(t *testing.T) {
	tokens := newTokens(t)
	signed := signRaw(t, jwa.HS256, func(b *jwt.Builder) *jwt.Builder {
		return b.Subject("ops").Issuer("atelier-admin").Expiration(time.Now().Add(time.Minute)).Claim(roleClaim, []string{"support", RoleAdmin})
	})
	subject, err := tokens.Parse(signed)
	require.NoError(t, err)
	require.Equal(t, "ops", subject)
}

func TestAdminTokenToleratesSmallSkew(t *testing.T) {
	tokens := newTokens(t)
	signed := signRaw(t, jwa.HS256, func(b *jwt.Builder) *jwt.Builder {
		return b.Subject("ops").Issuer("atelier-admin").Expiration(time.Now().Add(-10 * time.Second)).Claim(roleClaim, RoleAdmin)
	})
	_, err := tokens.Parse(signed)
	require.NoError(t, err)
}
