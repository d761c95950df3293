package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var errNoSubject = errors.New("auth: token subject missing")

// claimPolicy holds the registered-claim checks an admin token must pass
// before its role is inspected.
type claimPolicy struct {
	issuer    string
	skew      time.Duration
	algorithm jwa.SignatureAlgorithm
}

func (p claimPolicy) check(tok jwt.Token, alg jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if p.algorithm != "" && alg != p.algorithm {
		return fmt.Errorf("auth: unexpected token algorithm %s", alg)
	}
	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithAcceptableSkew(p.skew),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	if err := jwt.Validate(tok, opts...); err != nil {
		return err
	}
	if tok.Subject() == "" {
		return errNoSubject
	}
	return nil
}
