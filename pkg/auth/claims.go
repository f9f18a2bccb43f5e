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

// Package auth implements OAuth 2.1 bearer-token validation (JWKS-backed
// RSA JWT verification with audience and scope checks) and the
// claim-requirement filter applied to tool visibility and execution.
package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimSet is the decoded, verified contents of a caller's JWT. The
// anonymous sentinel represents a caller on a server with OAuth disabled;
// it passes every access check.
type ClaimSet struct {
	claims    jwt.MapClaims
	anonymous bool
}

// Anonymous returns the sentinel claim set used when OAuth is disabled.
func Anonymous() *ClaimSet {
	return &ClaimSet{anonymous: true}
}

// NewClaimSet wraps verified JWT claims.
func NewClaimSet(claims jwt.MapClaims) *ClaimSet {
	return &ClaimSet{claims: claims}
}

// IsAnonymous reports whether this is the unrestricted sentinel.
func (c *ClaimSet) IsAnonymous() bool {
	return c == nil || c.anonymous
}

// Get returns the raw value of a named claim.
func (c *ClaimSet) Get(name string) (any, bool) {
	if c == nil || c.claims == nil {
		return nil, false
	}
	v, ok := c.claims[name]
	return v, ok
}

// Scopes returns the whitespace-split scope claim, if any.
func (c *ClaimSet) Scopes() []string {
	v, ok := c.Get("scope")
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return strings.Fields(s)
}

// Subject returns the sub claim for logging purposes.
func (c *ClaimSet) Subject() string {
	v, ok := c.Get("sub")
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
