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

package config

import (
	"strings"
	"testing"
)

func TestServerConfigValidate_Defaults(t *testing.T) {
	cfg := ServerConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ServerName != DefaultServerName {
		t.Errorf("expected server name %q, got %q", DefaultServerName, cfg.ServerName)
	}
	if cfg.ServerVersion != DefaultServerVersion {
		t.Errorf("expected server version %q, got %q", DefaultServerVersion, cfg.ServerVersion)
	}
	if cfg.MaxTools != DefaultMaxTools {
		t.Errorf("expected max tools %d, got %d", DefaultMaxTools, cfg.MaxTools)
	}
	if cfg.OAuth.TokenValidation != TokenValidationJWT {
		t.Errorf("expected token validation %q, got %q", TokenValidationJWT, cfg.OAuth.TokenValidation)
	}
	if cfg.OAuth.JWKSCacheTTL != DefaultJWKSCacheTTL {
		t.Errorf("expected JWKS cache TTL %d, got %d", DefaultJWKSCacheTTL, cfg.OAuth.JWKSCacheTTL)
	}
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		config      ServerConfig
		expectError bool
		errorMsg    string
	}{
		{
			name: "explicit values survive validation",
			config: ServerConfig{
				ServerName:    "bridge",
				ServerVersion: "2.0.0",
				MaxTools:      10,
			},
			expectError: false,
		},
		{
			name: "introspection is rejected",
			config: ServerConfig{
				OAuth: OAuthConfig{TokenValidation: TokenValidationIntrospection},
			},
			expectError: true,
			errorMsg:    "not supported",
		},
		{
			name: "unknown token validation is rejected",
			config: ServerConfig{
				OAuth: OAuthConfig{TokenValidation: "opaque"},
			},
			expectError: true,
			errorMsg:    "unknown oauth.token_validation",
		},
		{
			name: "oauth enabled requires authorization servers",
			config: ServerConfig{
				OAuth: OAuthConfig{Enabled: true},
			},
			expectError: true,
			errorMsg:    "authorization_servers",
		},
		{
			name: "oauth enabled with servers passes",
			config: ServerConfig{
				OAuth: OAuthConfig{
					Enabled:              true,
					AuthorizationServers: []string{"https://issuer.example.com"},
				},
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()

			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRequirementValidate(t *testing.T) {
	tests := []struct {
		name        string
		requirement Requirement
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid requirement",
			requirement: Requirement{ClaimName: "groups", ClaimValues: []string{"admin"}, MatchType: MatchAny},
		},
		{
			name:        "missing claim name",
			requirement: Requirement{ClaimValues: []string{"admin"}},
			expectError: true,
			errorMsg:    "claim_name",
		},
		{
			name:        "missing claim values",
			requirement: Requirement{ClaimName: "groups"},
			expectError: true,
			errorMsg:    "claim_values",
		},
		{
			name:        "unknown match type",
			requirement: Requirement{ClaimName: "groups", ClaimValues: []string{"admin"}, MatchType: "some"},
			expectError: true,
			errorMsg:    "match_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.requirement.Validate()

			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRequirementValidate_DefaultsMatchType(t *testing.T) {
	req := Requirement{ClaimName: "groups", ClaimValues: []string{"admin"}}
	if err := req.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.MatchType != MatchAny {
		t.Errorf("expected default match type %q, got %q", MatchAny, req.MatchType)
	}
}

func TestRouteToolConfigValidate(t *testing.T) {
	validSpec := `{"openapi":"3.0.0","info":{"title":"t","version":"1"},"paths":{}}`

	tests := []struct {
		name        string
		route       RouteToolConfig
		expectError bool
		errorMsg    string
	}{
		{
			name:  "valid route",
			route: RouteToolConfig{RouteID: "r1", APISpecification: validSpec},
		},
		{
			name:        "missing route id",
			route:       RouteToolConfig{APISpecification: validSpec},
			expectError: true,
			errorMsg:    "route_id",
		},
		{
			name:        "specification too short",
			route:       RouteToolConfig{RouteID: "r1", APISpecification: "{}"},
			expectError: true,
			errorMsg:    "at least",
		},
		{
			name: "per-operation requirement without operation id",
			route: RouteToolConfig{
				RouteID:          "r1",
				APISpecification: validSpec,
				AccessControl: &AccessControl{
					PerOperationRequirements: []Requirement{
						{ClaimName: "groups", ClaimValues: []string{"admin"}},
					},
				},
			},
			expectError: true,
			errorMsg:    "operation_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.route.Validate()

			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRouteToolConfigIsEnabled(t *testing.T) {
	enabled := true
	disabled := false

	tests := []struct {
		name     string
		flag     *bool
		expected bool
	}{
		{name: "unset defaults to enabled", flag: nil, expected: true},
		{name: "explicitly enabled", flag: &enabled, expected: true},
		{name: "explicitly disabled", flag: &disabled, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := RouteToolConfig{Enabled: tt.flag}
			if got := route.IsEnabled(); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
