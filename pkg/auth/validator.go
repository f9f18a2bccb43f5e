// Copyright 2025 MakeMCP Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/gatewaylabs/kong-mcp-bridge/pkg/config"
)

// Machine-readable failure reasons surfaced in error data. The token
// itself is never part of any reason.
const (
	ReasonMissingToken     = "Missing authorization token"
	ReasonInvalidFormat    = "Invalid authorization header format"
	ReasonMalformedToken   = "Malformed token"
	ReasonBadSignature     = "Invalid token signature"
	ReasonExpired          = "Token expired"
	ReasonNotYetValid      = "Token not yet valid"
	ReasonUnknownKey       = "Unknown signing key"
	ReasonKeysUnavailable  = "Unable to fetch signing keys"
	ReasonAudienceMismatch = "Audience mismatch"
	ReasonMissingScope     = "Missing required scope"
	ReasonInvalidToken     = "Token validation failed"
)

// AuthError is a failed validation with a machine-readable reason.
type AuthError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

// Unwrap exposes the underlying cause.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// rsaMethods are the only accepted signature algorithms.
var rsaMethods = []string{"RS256", "RS384", "RS512"}

// Validator verifies bearer JWTs against the configured authorization
// servers. It is safe for concurrent use; one Validator lives as long as
// its configuration snapshot.
type Validator struct {
	cfg    config.OAuthConfig
	cache  *jwksCache
	parser *jwt.Parser
}

// NewValidator creates a validator for the given OAuth configuration.
func NewValidator(cfg config.OAuthConfig) *Validator {
	return &Validator{
		cfg:   cfg,
		cache: newJWKSCache(cfg.JWKSCacheTTL),
		parser: jwt.NewParser(
			jwt.WithValidMethods(rsaMethods),
			jwt.WithExpirationRequired(),
		),
	}
}

// ValidateRequest extracts the bearer token from an HTTP request and
// validates it. With OAuth disabled it returns the anonymous sentinel and
// callers must treat tools as unrestricted.
func (v *Validator) ValidateRequest(r *http.Request) (*ClaimSet, *AuthError) {
	if !v.cfg.Enabled {
		return Anonymous(), nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, &AuthError{Reason: ReasonMissingToken}
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(header, bearerPrefix) {
		return nil, &AuthError{Reason: ReasonInvalidFormat}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return nil, &AuthError{Reason: ReasonMissingToken}
	}
	return v.ValidateToken(token)
}

// ValidateToken verifies signature, expiry, audience and required scopes
// and returns the decoded claim set.
func (v *Validator) ValidateToken(tokenString string) (*ClaimSet, *AuthError) {
	if !v.cfg.Enabled {
		return Anonymous(), nil
	}

	claims, authErr := v.verifySignature(tokenString)
	if authErr != nil {
		return nil, authErr
	}

	claimSet := NewClaimSet(claims)
	if v.cfg.Audience != "" && !audienceContains(claims, v.cfg.Audience) {
		return nil, &AuthError{Reason: ReasonAudienceMismatch}
	}
	if len(v.cfg.RequiredScopes) > 0 {
		granted := claimSet.Scopes()
		for _, required := range v.cfg.RequiredScopes {
			if !slices.Contains(granted, required) {
				return nil, &AuthError{Reason: ReasonMissingScope}
			}
		}
	}
	return claimSet, nil
}

// verifySignature tries each configured authorization server until one
// holds the token's signing key. A kid miss moves on to the next server;
// any other verification failure is final.
func (v *Validator) verifySignature(tokenString string) (jwt.MapClaims, *AuthError) {
	var lastErr *AuthError
	for _, server := range v.cfg.AuthorizationServers {
		jwks, err := v.cache.get(server)
		if err != nil {
			lastErr = &AuthError{Reason: ReasonKeysUnavailable, Err: err}
			continue
		}

		claims := jwt.MapClaims{}
		_, err = v.parser.ParseWithClaims(tokenString, claims, jwks.Keyfunc)
		if err == nil {
			return claims, nil
		}

		authErr := classifyJWTError(err)
		if authErr.Reason == ReasonUnknownKey {
			// The key may live at another configured issuer.
			lastErr = authErr
			continue
		}
		return nil, authErr
	}
	if lastErr == nil {
		lastErr = &AuthError{Reason: ReasonKeysUnavailable}
	}
	return nil, lastErr
}

func classifyJWTError(err error) *AuthError {
	switch {
	case errors.Is(err, keyfunc.ErrKIDNotFound):
		return &AuthError{Reason: ReasonUnknownKey, Err: err}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &AuthError{Reason: ReasonMalformedToken, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &AuthError{Reason: ReasonExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return &AuthError{Reason: ReasonNotYetValid, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &AuthError{Reason: ReasonBadSignature, Err: err}
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return &AuthError{Reason: ReasonKeysUnavailable, Err: err}
	default:
		return &AuthError{Reason: ReasonInvalidToken, Err: err}
	}
}

// audienceContains checks the aud claim, which may be a single string or a
// list of strings.
func audienceContains(claims jwt.MapClaims, audience string) bool {
	raw, ok := claims["aud"]
	if !ok {
		return false
	}
	switch aud := raw.(type) {
	case string:
		return aud == audience
	case []any:
		for _, e := range aud {
			if s, ok := e.(string); ok && s == audience {
				return true
			}
		}
	case []string:
		return slices.Contains(aud, audience)
	}
	return false
}

// Close releases JWKS background refreshers.
func (v *Validator) Close() {
	v.cache.close()
}
