// Package jwt issues and verifies the portal's signed tokens. Every token
// carries a nonce as its jti, so it can be revoked by consuming the nonce.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"logi-track/internal/nonce"
)

var (
	ErrInvalidNonce     = errors.New("invalid nonce")
	ErrNonValidToken    = errors.New("token did not pass validation")
	ErrInvalidClaimType = errors.New("invalid claim type")
)

const (
	SessionAudience   = "session"
	MagicLinkAudience = "magic_link"
)

// Nonces outlive their token slightly to allow for clock skew.
const nonceSkew = 10 * time.Second

var tokenSignatureAlg = jwtlib.SigningMethodHS256

// Claim for an authenticated portal session
type SessionClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	MustRenew bool   `json:"must_renew,omitempty"`
	jwtlib.RegisteredClaims
}

// Claim for a single use sign-in link
type MagicLinkClaims struct {
	UserID string `json:"user_id"`
	jwtlib.RegisteredClaims
}

// Issuer signs tokens with a shared secret and tracks their nonces.
type Issuer struct {
	secret []byte
	nonces nonce.Store
}

func NewIssuer(secret string, store nonce.Store) *Issuer {
	return &Issuer{secret: []byte(secret), nonces: store}
}

func (i *Issuer) registeredClaim(ctx context.Context, audience string, ttl time.Duration) (jwtlib.RegisteredClaims, error) {
	if ttl <= 0 {
		return jwtlib.RegisteredClaims{}, fmt.Errorf("invalid token TTL %s", ttl)
	}
	id, err := nonce.New(ctx, i.nonces, ttl+nonceSkew)
	if err != nil {
		return jwtlib.RegisteredClaims{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now().UTC()
	return jwtlib.RegisteredClaims{
		ID:        id,
		Audience:  jwtlib.ClaimStrings{audience},
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
	}, nil
}

// NewSession issues a session token for a user.
func (i *Issuer) NewSession(ctx context.Context, userID, email, role string, ttl time.Duration) (string, *SessionClaims, error) {
	rc, err := i.registeredClaim(ctx, SessionAudience, ttl)
	if err != nil {
		return "", nil, err
	}
	rc.Subject = userID
	claims := &SessionClaims{
		UserID:           userID,
		Email:            email,
		Role:             role,
		RegisteredClaims: rc,
	}
	token, err := i.Sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// DecodeSession verifies a session token. Tokens whose nonce was consumed
// (logged out or renewed) are rejected.
func (i *Issuer) DecodeSession(ctx context.Context, token string) (*SessionClaims, error) {
	claims, err := decodeJWT(token, &SessionClaims{}, i.secret, SessionAudience)
	if err != nil {
		return nil, err
	}
	if !i.nonces.Exists(ctx, claims.ID) {
		return nil, ErrInvalidNonce
	}
	return claims, nil
}

// Revoke consumes the nonce of a token so it can no longer be used.
func (i *Issuer) Revoke(ctx context.Context, id string) error {
	if _, err := i.nonces.Consume(ctx, id); err != nil {
		return err
	}
	return nil
}

// NewMagicLink issues a single use sign-in token.
func (i *Issuer) NewMagicLink(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	rc, err := i.registeredClaim(ctx, MagicLinkAudience, ttl)
	if err != nil {
		return "", err
	}
	rc.Subject = userID
	return i.Sign(&MagicLinkClaims{UserID: userID, RegisteredClaims: rc})
}

// ConsumeMagicLink verifies a magic link token and burns its nonce.
func (i *Issuer) ConsumeMagicLink(ctx context.Context, token string) (*MagicLinkClaims, error) {
	claims, err := decodeJWT(token, &MagicLinkClaims{}, i.secret, MagicLinkAudience)
	if err != nil {
		return nil, err
	}
	ok, err := i.nonces.Consume(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNonce, err)
	} else if !ok {
		return nil, ErrInvalidNonce
	}
	return claims, nil
}

// Generic JWT token generation function
func (i *Issuer) Sign(claims jwtlib.Claims) (string, error) {
	token := jwtlib.NewWithClaims(tokenSignatureAlg, claims)
	return token.SignedString(i.secret)
}

func decodeJWT[T jwtlib.Claims](tokenString string, claimsType T, secret []byte, audience string) (T, error) {
	var zero T

	parsedToken, err := jwtlib.ParseWithClaims(tokenString, claimsType, func(token *jwtlib.Token) (interface{}, error) {
		return secret, nil
	},
		jwtlib.WithValidMethods([]string{tokenSignatureAlg.Alg()}),
		jwtlib.WithAudience(audience),
		jwtlib.WithExpirationRequired(),
	)

	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrNonValidToken, err)
	} else if parsedToken == nil || !parsedToken.Valid {
		return zero, ErrNonValidToken
	} else if claims, ok := parsedToken.Claims.(T); ok {
		return claims, nil
	}

	return zero, ErrInvalidClaimType
}
