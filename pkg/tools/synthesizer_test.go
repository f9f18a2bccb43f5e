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

package tools

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"github.com/gatewaylabs/kong-mcp-bridge/pkg/config"
	"github.com/gatewaylabs/kong-mcp-bridge/pkg/openapi"
)

var legalName = regexp.MustCompile(`^[a-z0-9_-]+$`)

func TestToolName(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		method   string
		path     string
		expected string
	}{
		{
			name:     "simple path",
			prefix:   "users",
			method:   "GET",
			path:     "/users",
			expected: "users_get_users",
		},
		{
			name:     "path parameter braces stripped",
			prefix:   "users",
			method:   "DELETE",
			path:     "/users/{userId}",
			expected: "users_delete_users_userid",
		},
		{
			name:     "root path",
			prefix:   "svc",
			method:   "GET",
			path:     "/",
			expected: "svc_get_root",
		},
		{
			name:     "uppercase prefix lowered",
			prefix:   "MyAPI",
			method:   "POST",
			path:     "/orders",
			expected: "myapi_post_orders",
		},
		{
			name:     "illegal characters collapse",
			prefix:   "api v2",
			method:   "GET",
			path:     "/a.b/c-d",
			expected: "api_v2_get_a_b_c_d",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToolName(tt.prefix, tt.method, tt.path)
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
			if !legalName.MatchString(got) {
				t.Errorf("name %q violates the legal character set", got)
			}
		})
	}
}

func TestToolName_Deterministic(t *testing.T) {
	first := ToolName("svc", "GET", "/users/{id}/posts")
	second := ToolName("svc", "GET", "/users/{id}/posts")
	if first != second {
		t.Errorf("expected deterministic names, got %q and %q", first, second)
	}
}

func TestToolName_LengthCap(t *testing.T) {
	longPath := "/" + strings.Repeat("segment/", 40)
	name := ToolName("prefix", "GET", longPath)

	if len(name) > MaxToolNameLength {
		t.Errorf("expected name capped at %d, got %d", MaxToolNameLength, len(name))
	}
	if !legalName.MatchString(name) {
		t.Errorf("truncated name %q violates the legal character set", name)
	}
	if strings.HasSuffix(name, "_") || strings.HasSuffix(name, "-") {
		t.Errorf("truncated name %q ends with a separator", name)
	}
}

const synthesisSpec = `{
	"openapi": "3.0.0",
	"info": {"title": "Users", "version": "1.0.0"},
	"paths": {
		"/users": {
			"get": {
				"operationId": "listUsers",
				"summary": "List all users",
				"parameters": [
					{"name": "limit", "in": "query", "schema": {"type": "integer"}}
				]
			},
			"post": {
				"operationId": "createUser",
				"requestBody": {
					"required": true,
					"content": {
						"application/json": {
							"schema": {"type": "object", "properties": {"name": {"type": "string"}}}
						}
					}
				}
			}
		},
		"/users/{userId}": {
			"get": {
				"operationId": "getUser",
				"parameters": [
					{"name": "userId", "in": "path", "required": true, "schema": {"type": "string"}}
				],
				"security": [{"oauth": ["users:read"]}]
			}
		}
	}
}`

func testRoute() config.RouteToolConfig {
	return config.RouteToolConfig{
		RouteID:          "users-v1",
		RouteName:        "users",
		UpstreamBasePath: "http://upstream.internal/api",
		APISpecification: synthesisSpec,
	}
}

func TestSynthesize(t *testing.T) {
	records, err := Synthesize(testRoute(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(records))
	}

	byName := make(map[string]ToolRecord, len(records))
	for _, record := range records {
		byName[record.Name] = record
	}

	list, ok := byName["users_get_users"]
	if !ok {
		t.Fatal("expected tool users_get_users")
	}
	if list.Description != "List all users" {
		t.Errorf("expected summary as description, got %q", list.Description)
	}
	if list.HTTPMethod != "GET" || list.EndpointPath != "/users" {
		t.Errorf("unexpected execution binding: %s %s", list.HTTPMethod, list.EndpointPath)
	}
	if list.RouteBasePath != "http://upstream.internal/api" {
		t.Errorf("unexpected base path %q", list.RouteBasePath)
	}

	create, ok := byName["users_post_users"]
	if !ok {
		t.Fatal("expected tool users_post_users")
	}
	properties := create.InputSchema["properties"].(map[string]any)
	if _, ok := properties["body"]; !ok {
		t.Error("expected body property for request body")
	}
	required := create.InputSchema["required"].([]string)
	if len(required) != 1 || required[0] != "body" {
		t.Errorf("expected required [body], got %v", required)
	}
}

func TestSynthesize_GeneratedDescription(t *testing.T) {
	records, err := Synthesize(testRoute(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, record := range records {
		if record.OperationID == "getUser" {
			if record.Description != "Retrieve /users/by userId" {
				t.Errorf("unexpected generated description %q", record.Description)
			}
			return
		}
	}
	t.Fatal("getUser tool not found")
}

func TestSynthesize_RequiredAlwaysSerializesAsArray(t *testing.T) {
	records, err := Synthesize(testRoute(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, record := range records {
		encoded, err := json.Marshal(record.InputSchema)
		if err != nil {
			t.Fatalf("failed to marshal schema: %v", err)
		}
		if !strings.Contains(string(encoded), `"required":[`) {
			t.Errorf("tool %s: required must serialise as an array, got %s", record.Name, encoded)
		}
	}
}

func TestSynthesize_ParameterMarkers(t *testing.T) {
	records, err := Synthesize(testRoute(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, record := range records {
		if record.OperationID != "listUsers" {
			continue
		}
		properties := record.InputSchema["properties"].(map[string]any)
		limit, ok := properties["limit"].(map[string]any)
		if !ok {
			t.Fatal("expected limit property")
		}
		if limit[openapi.ExtParameterIn] != "query" {
			t.Errorf("expected query marker, got %v", limit[openapi.ExtParameterIn])
		}
		return
	}
	t.Fatal("listUsers tool not found")
}

func TestSynthesize_ToolPrefixOverridesRouteName(t *testing.T) {
	route := testRoute()
	route.ToolPrefix = "accounts"

	records, err := Synthesize(route, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, record := range records {
		if !strings.HasPrefix(record.Name, "accounts_") {
			t.Errorf("expected accounts_ prefix, got %q", record.Name)
		}
	}
}

func TestSynthesize_AccessRequirements(t *testing.T) {
	route := testRoute()
	route.AccessControl = &config.AccessControl{
		DefaultRequirements: []config.Requirement{
			{ClaimName: "groups", ClaimValues: []string{"users"}, MatchType: config.MatchAny},
		},
		PerOperationRequirements: []config.Requirement{
			{ClaimName: "groups", ClaimValues: []string{"admins"}, MatchType: config.MatchAny, OperationID: "createUser"},
		},
	}

	records, err := Synthesize(route, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, record := range records {
		switch record.OperationID {
		case "createUser":
			if len(record.AccessRequirements) != 1 || record.AccessRequirements[0].ClaimValues[0] != "admins" {
				t.Errorf("expected per-operation override for createUser, got %v", record.AccessRequirements)
			}
		default:
			if len(record.AccessRequirements) != 1 || record.AccessRequirements[0].ClaimValues[0] != "users" {
				t.Errorf("expected default requirements for %s, got %v", record.OperationID, record.AccessRequirements)
			}
		}
	}
}

func TestSynthesize_ScopeFiltering(t *testing.T) {
	records, err := Synthesize(testRoute(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, record := range records {
		if record.OperationID == "getUser" {
			if len(record.AccessRequirements) != 1 {
				t.Fatalf("expected scope requirement, got %v", record.AccessRequirements)
			}
			req := record.AccessRequirements[0]
			if req.ClaimName != "scope" || req.MatchType != config.MatchAll {
				t.Errorf("unexpected scope requirement: %+v", req)
			}
			if len(req.ClaimValues) != 1 || req.ClaimValues[0] != "users:read" {
				t.Errorf("expected claim values [users:read], got %v", req.ClaimValues)
			}
		} else if len(record.AccessRequirements) != 0 {
			t.Errorf("expected no requirements for %s, got %v", record.OperationID, record.AccessRequirements)
		}
	}
}

func TestSynthesize_BadSpecification(t *testing.T) {
	route := testRoute()
	route.APISpecification = "not a spec"

	if _, err := Synthesize(route, false); err == nil {
		t.Error("expected error for unparseable specification")
	}
}
