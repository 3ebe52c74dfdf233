package auth

import (
	"context"
	"time"
)

// Verifier checks bearer tokens: RS256 tokens carrying a kid are resolved through
// JWKS when a client is configured, everything else is verified as HS256.
type Verifier struct {
	secret string
	jwks   *JWKSClient
	now    func() time.Time
}

func NewVerifier(secret string, jwks *JWKSClient) *Verifier {
	return &Verifier{secret: secret, jwks: jwks, now: time.Now}
}

func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	now := v.now()
	if v.jwks == nil {
		return ParseAndVerifyHS256(token, v.secret, now)
	}
	header, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}
	if header.Alg == "RS256" && header.Kid != "" {
		pub, err := v.jwks.Get(ctx, header.Kid)
		if err != nil {
			return nil, ErrInvalidToken
		}
		return VerifyRS256(token, pub, now)
	}
	return ParseAndVerifyHS256(token, v.secret, now)
}
