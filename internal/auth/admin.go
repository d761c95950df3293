package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-atelier/internal/common"
	"github.com/noah-isme/backend-atelier/internal/obs"
)

// RoleAdmin is the role claim value granting access to back-office routes.
const RoleAdmin = "admin"

const roleClaim = "role"

var (
	// ErrForbidden is returned when a valid token lacks the admin role.
	ErrForbidden = errors.New("auth: admin role required")
	errNoToken   = errors.New("auth: token missing")
)

// AdminTokens signs and parses back-office bearer tokens. Identity is issued
// elsewhere; this service only checks the shared HMAC secret and the role claim.
type AdminTokens struct {
	secret    []byte
	policy    claimPolicy
	now       func() time.Time
}

// NewAdminTokens builds the admin token service for an HS256 secret.
func NewAdminTokens(secret, issuer string) (*AdminTokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: admin secret is required")
	}
	return &AdminTokens{
		secret: []byte(secret),
		policy: claimPolicy{
			issuer:    issuer,
			skew:      30 * time.Second,
			algorithm: jwa.HS256,
		},
		now: time.Now,
	}, nil
}

// Sign mints an admin token for subject valid for ttl.
func (a *AdminTokens) Sign(subject string, ttl time.Duration) (string, error) {
	now := a.now()
	token, err := jwt.NewBuilder().
		Subject(subject).
		Issuer(a.policy.issuer).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl)).
		Claim(roleClaim, RoleAdmin).
		Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, a.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// Parse validates token and returns its subject when it carries the admin role.
func (a *AdminTokens) Parse(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", errNoToken
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", err
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, a.secret), jwt.WithValidate(false))
	if err != nil {
		return "", err
	}
	if err := a.policy.check(parsed, algorithm, a.now()); err != nil {
		return "", err
	}
	if !hasAdminRole(parsed) {
		return "", ErrForbidden
	}
	return parsed.Subject(), nil
}

func hasAdminRole(tok jwt.Token) bool {
	raw, ok := tok.Get(roleClaim)
	if !ok {
		return false
	}
	switch v := raw.(type) {
	case string:
		return v == RoleAdmin
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == RoleAdmin {
				return true
			}
		}
	}
	return false
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

// RequireAdmin rejects requests without a valid admin bearer token and stores the
// admin subject on the request context.
func (a *AdminTokens) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := a.Parse(bearer(r))
		switch {
		case err == nil:
			obs.NoteAdmin(r.Context(), subject)
			next.ServeHTTP(w, r.WithContext(common.WithAdminSubject(r.Context(), subject)))
		case errors.Is(err, ErrForbidden):
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin role required", nil)
		default:
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		}
	})
}

func bearer(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
