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

// Package config holds the typed configuration model of the bridge: the
// server-wide settings and the per-route tool settings that drive OpenAPI
// tool synthesis, access control and OAuth validation.
package config

import (
	"fmt"
	"strings"
)

// Defaults applied by Validate when a field is unset.
const (
	DefaultServerName    = "kong-mcp"
	DefaultServerVersion = "1.0.0"
	DefaultMaxTools      = 1000
	DefaultJWKSCacheTTL  = 300 // seconds

	// MinSpecificationLength is the minimum length of an inline OpenAPI
	// document; anything shorter cannot be a usable specification.
	MinSpecificationLength = 50
)

// TokenValidation selects how bearer tokens are validated.
type TokenValidation string

const (
	TokenValidationJWT           TokenValidation = "jwt"
	TokenValidationIntrospection TokenValidation = "introspection"
)

// MatchType defines how a requirement's claim values are combined.
type MatchType string

const (
	MatchAny MatchType = "any"
	MatchAll MatchType = "all"
)

// IsValid returns true if the match type is a known value.
func (m MatchType) IsValid() bool {
	return m == MatchAny || m == MatchAll
}

// OAuthConfig holds the OAuth 2.1 bearer-token validation settings.
type OAuthConfig struct {
	Enabled              bool            `json:"enabled"`
	AuthorizationServers []string        `json:"authorization_servers,omitempty"`
	Audience             string          `json:"audience,omitempty"`
	RequiredScopes       []string        `json:"required_scopes,omitempty"`
	TokenValidation      TokenValidation `json:"token_validation,omitempty"`
	ToolScopeFiltering   bool            `json:"tool_scope_filtering"`

	// JWKSCacheTTL is the per-URL JWKS cache lifetime in seconds.
	JWKSCacheTTL int `json:"jwks_cache_ttl,omitempty"`
}

// ServerConfig holds the server-wide settings. A ServerConfig is immutable
// for the lifetime of a worker; reload swaps the whole value atomically.
type ServerConfig struct {
	ServerName    string      `json:"server_name"`
	ServerVersion string      `json:"server_version"`
	MaxTools      int         `json:"max_tools"`
	OAuth         OAuthConfig `json:"oauth"`
}

// Validate checks the server configuration for consistency and fills in
// defaults for unset fields.
func (c *ServerConfig) Validate() error {
	if c.ServerName == "" {
		c.ServerName = DefaultServerName
	}
	if c.ServerVersion == "" {
		c.ServerVersion = DefaultServerVersion
	}
	if c.MaxTools <= 0 {
		c.MaxTools = DefaultMaxTools
	}
	if c.OAuth.TokenValidation == "" {
		c.OAuth.TokenValidation = TokenValidationJWT
	}
	if c.OAuth.JWKSCacheTTL <= 0 {
		c.OAuth.JWKSCacheTTL = DefaultJWKSCacheTTL
	}

	switch c.OAuth.TokenValidation {
	case TokenValidationJWT:
	case TokenValidationIntrospection:
		return fmt.Errorf("oauth.token_validation %q is not supported by this server; use %q",
			TokenValidationIntrospection, TokenValidationJWT)
	default:
		return fmt.Errorf("unknown oauth.token_validation value: %q", c.OAuth.TokenValidation)
	}

	if c.OAuth.Enabled && len(c.OAuth.AuthorizationServers) == 0 {
		return fmt.Errorf("oauth.authorization_servers must be set when OAuth is enabled")
	}
	return nil
}

// Requirement is a predicate over a claim set: the named claim must contain
// the listed values, combined according to MatchType. OperationID is only
// meaningful inside per_operation_requirements.
type Requirement struct {
	ClaimName   string    `json:"claim_name"`
	ClaimValues []string  `json:"claim_values"`
	MatchType   MatchType `json:"match_type"`
	OperationID string    `json:"operation_id,omitempty"`
}

// Validate checks a single requirement.
func (r *Requirement) Validate() error {
	if r.ClaimName == "" {
		return fmt.Errorf("requirement is missing claim_name")
	}
	if len(r.ClaimValues) == 0 {
		return fmt.Errorf("requirement for claim %q has no claim_values", r.ClaimName)
	}
	if r.MatchType == "" {
		r.MatchType = MatchAny
	}
	if !r.MatchType.IsValid() {
		return fmt.Errorf("requirement for claim %q has unknown match_type %q", r.ClaimName, r.MatchType)
	}
	return nil
}

// AccessControl carries the route-wide default requirements plus
// per-operation overrides keyed by operation_id.
type AccessControl struct {
	DefaultRequirements      []Requirement `json:"default_requirements,omitempty"`
	PerOperationRequirements []Requirement `json:"per_operation_requirements,omitempty"`
}

// RouteToolConfig configures tool synthesis for one routed upstream.
type RouteToolConfig struct {
	RouteID          string         `json:"route_id"`
	RouteName        string         `json:"route_name"`
	UpstreamBasePath string         `json:"upstream_base_path,omitempty"`
	APISpecification string         `json:"api_specification"`
	ToolPrefix       string         `json:"tool_prefix,omitempty"`
	Enabled          *bool          `json:"enabled,omitempty"`
	AccessControl    *AccessControl `json:"access_control,omitempty"`
}

// IsEnabled reports whether the route participates in tool synthesis.
// Routes are enabled unless explicitly disabled.
func (r *RouteToolConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Validate checks the route configuration.
func (r *RouteToolConfig) Validate() error {
	if r.RouteID == "" {
		return fmt.Errorf("route is missing route_id")
	}
	if len(strings.TrimSpace(r.APISpecification)) < MinSpecificationLength {
		return fmt.Errorf("route %s: api_specification must be at least %d characters",
			r.RouteID, MinSpecificationLength)
	}
	if r.AccessControl != nil {
		for i := range r.AccessControl.DefaultRequirements {
			if err := r.AccessControl.DefaultRequirements[i].Validate(); err != nil {
				return fmt.Errorf("route %s: %w", r.RouteID, err)
			}
		}
		for i := range r.AccessControl.PerOperationRequirements {
			req := &r.AccessControl.PerOperationRequirements[i]
			if err := req.Validate(); err != nil {
				return fmt.Errorf("route %s: %w", r.RouteID, err)
			}
			if req.OperationID == "" {
				return fmt.Errorf("route %s: per-operation requirement is missing operation_id", r.RouteID)
			}
		}
	}
	return nil
}
