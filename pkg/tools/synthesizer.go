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

// Package tools synthesises MCP tool records from routed OpenAPI documents
// and holds them in an immutable, identity-filtered registry.
package tools

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gatewaylabs/kong-mcp-bridge/pkg/config"
	"github.com/gatewaylabs/kong-mcp-bridge/pkg/openapi"
)

// MaxToolNameLength caps generated tool names.
const MaxToolNameLength = 128

// ToolRecord is the registry entry for one synthesised tool: the
// client-visible definition plus the execution binding back to the
// upstream route.
type ToolRecord struct {
	Name        string
	Description string
	InputSchema map[string]any

	HTTPMethod    string
	EndpointPath  string
	RouteID       string
	RouteName     string
	RouteBasePath string
	OperationID   string

	AccessRequirements []config.Requirement
}

// Synthesize converts every operation of a route's OpenAPI document into a
// ToolRecord. The scope filtering switch adds scope requirements derived
// from operation security when the route declares no access control of its
// own.
func Synthesize(route config.RouteToolConfig, scopeFiltering bool) ([]ToolRecord, error) {
	doc, err := openapi.Load(route.APISpecification)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", route.RouteID, err)
	}

	prefix := route.ToolPrefix
	if prefix == "" {
		prefix = route.RouteName
	}

	ops := openapi.Operations(doc)
	records := make([]ToolRecord, 0, len(ops))
	for _, op := range ops {
		records = append(records, ToolRecord{
			Name:               ToolName(prefix, op.Method, op.Path),
			Description:        describe(op),
			InputSchema:        buildInputSchema(op),
			HTTPMethod:         op.Method,
			EndpointPath:       op.Path,
			RouteID:            route.RouteID,
			RouteName:          route.RouteName,
			RouteBasePath:      route.UpstreamBasePath,
			OperationID:        op.OperationID,
			AccessRequirements: requirementsFor(route, op, scopeFiltering),
		})
	}
	return records, nil
}

var (
	pathParamPattern = regexp.MustCompile(`\{([^}]*)\}`)
	invalidPathChars = regexp.MustCompile(`[^A-Za-z0-9_]`)
	invalidNameChars = regexp.MustCompile(`[^a-z0-9_-]`)
	underscoreRuns   = regexp.MustCompile(`_+`)
	separatorRuns    = regexp.MustCompile(`[_-]{2,}`)
)

// ToolName composes the deterministic tool name for a (prefix, method,
// path) triple. The result always matches ^[a-z0-9_-]+$ and is at most
// MaxToolNameLength characters.
func ToolName(prefix, method, path string) string {
	name := fmt.Sprintf("%s_%s_%s", prefix, strings.ToLower(method), simplifyPath(path))
	name = strings.ToLower(name)
	name = invalidNameChars.ReplaceAllString(name, "_")
	name = separatorRuns.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_-")
	if len(name) > MaxToolNameLength {
		name = strings.Trim(name[:MaxToolNameLength], "_-")
	}
	if name == "" {
		name = "root"
	}
	return name
}

// simplifyPath flattens a URL template into a name fragment: slashes
// become underscores, {param} braces are stripped, anything else illegal
// collapses to underscores.
func simplifyPath(path string) string {
	p := strings.TrimPrefix(path, "/")
	p = strings.ReplaceAll(p, "/", "_")
	p = pathParamPattern.ReplaceAllString(p, "$1")
	p = invalidPathChars.ReplaceAllString(p, "_")
	p = underscoreRuns.ReplaceAllString(p, "_")
	p = strings.Trim(p, "_")
	if p == "" {
		return "root"
	}
	return p
}

// methodVerbs backs the generated description when an operation has
// neither summary nor description.
var methodVerbs = map[string]string{
	"GET":     "Retrieve",
	"POST":    "Create",
	"PUT":     "Update",
	"PATCH":   "Partially update",
	"DELETE":  "Delete",
	"HEAD":    "Get headers for",
	"OPTIONS": "Get options for",
}

func describe(op openapi.Operation) string {
	if op.Summary != "" {
		return op.Summary
	}
	if op.Description != "" {
		return op.Description
	}
	verb, ok := methodVerbs[op.Method]
	if !ok {
		verb = fmt.Sprintf("Execute %s on", op.Method)
	}
	path := pathParamPattern.ReplaceAllString(op.Path, "by $1")
	return fmt.Sprintf("%s %s", verb, path)
}

// buildInputSchema assembles the tool input schema: one property per
// parameter (with its x-parameter-in marker) plus a body property when the
// operation defines a request body. The required list is always present,
// serialising as [] when nothing is required.
func buildInputSchema(op openapi.Operation) map[string]any {
	properties := map[string]any{}
	required := []string{}

	for _, param := range op.Parameters {
		if param.Name == "" {
			continue
		}
		properties[param.Name] = openapi.ConvertParameter(param)
		if param.Required {
			required = append(required, param.Name)
		}
	}

	if body, bodyRequired, ok := openapi.SelectRequestBody(op.RequestBody); ok {
		properties["body"] = body
		if bodyRequired {
			required = append(required, "body")
		}
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// requirementsFor resolves the access requirements of one operation. A
// per-operation override replaces the route defaults wholesale. With
// tool_scope_filtering enabled and no explicit access control, OpenAPI
// security scopes become a scope-claim requirement.
func requirementsFor(route config.RouteToolConfig, op openapi.Operation, scopeFiltering bool) []config.Requirement {
	if route.AccessControl != nil {
		if op.OperationID != "" {
			for _, req := range route.AccessControl.PerOperationRequirements {
				if req.OperationID == op.OperationID {
					return []config.Requirement{req}
				}
			}
		}
		if len(route.AccessControl.DefaultRequirements) > 0 {
			return route.AccessControl.DefaultRequirements
		}
	}

	if scopeFiltering {
		if scopes := securityScopes(op); len(scopes) > 0 {
			return []config.Requirement{{
				ClaimName:   "scope",
				ClaimValues: scopes,
				MatchType:   config.MatchAll,
			}}
		}
	}
	return nil
}

func securityScopes(op openapi.Operation) []string {
	if op.Security == nil {
		return nil
	}
	var scopes []string
	seen := make(map[string]bool)
	for _, requirement := range *op.Security {
		for _, schemeScopes := range requirement {
			for _, scope := range schemeScopes {
				if !seen[scope] {
					seen[scope] = true
					scopes = append(scopes, scope)
				}
			}
		}
	}
	return scopes
}
