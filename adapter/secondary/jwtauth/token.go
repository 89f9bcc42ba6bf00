// Package jwtauth mints outbound bearer tokens and validates inbound ones
// for endpoints/webhooks whose AuthDescriptor.Type is AUTH_JWT, adapted
// from the HMAC-signed batch-token pattern of the reference gateway's
// x402.TokenManager.
package jwtauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ruudy-sib/corepay/core/domain"
)

// Claims is the payload of a bearer token minted for a dispatcher call or
// presented by an inbound webhook.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id,omitempty"`
}

// Mint signs a bearer token per desc's configured secret/issuer, valid for
// ttl, identifying tenantID as the subject (spec §3/§6 outbound JWT auth).
func Mint(desc domain.AuthDescriptor, tenantID string, ttl time.Duration) (string, error) {
	if desc.Type != domain.AuthJWT {
		return "", fmt.Errorf("auth descriptor is %q, not AUTH_JWT", desc.Type)
	}
	if desc.JWTSecret == "" {
		return "", errors.New("jwt auth descriptor has no secret configured")
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    desc.JWTIssuer,
			Subject:   tenantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: tenantID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(desc.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("signing bearer token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies tokenString against desc's secret/issuer,
// rejecting any signing method other than HMAC (spec §3/§6 inbound JWT
// auth on endpoints/webhooks).
func Validate(desc domain.AuthDescriptor, tokenString string) (*Claims, error) {
	if desc.Type != domain.AuthJWT {
		return nil, fmt.Errorf("auth descriptor is %q, not AUTH_JWT", desc.Type)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(desc.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing bearer token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid bearer token claims")
	}
	if desc.JWTIssuer != "" && claims.Issuer != desc.JWTIssuer {
		return nil, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	return claims, nil
}

// AuthorizationHeader returns the (name, value) HTTP header to attach to an
// outbound call for desc, or ("", "", nil) when desc needs no header (NONE,
// or a scheme handled out-of-band such as MTLS). API_KEY and JWT are
// resolved into a Header here; OAUTH2 is left to its own token-fetch flow
// and is not produced by this package.
func AuthorizationHeader(desc domain.AuthDescriptor, tenantID string, ttl time.Duration) (name, value string, err error) {
	switch desc.Type {
	case domain.AuthNone, "":
		return "", "", nil
	case domain.AuthAPIKey:
		if desc.APIKey == "" {
			return "", "", errors.New("api key auth descriptor has no key configured")
		}
		return "X-API-Key", desc.APIKey, nil
	case domain.AuthJWT:
		token, err := Mint(desc, tenantID, ttl)
		if err != nil {
			return "", "", err
		}
		return "Authorization", "Bearer " + token, nil
	default:
		return "", "", nil
	}
}
