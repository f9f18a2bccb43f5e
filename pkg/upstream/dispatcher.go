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

// Package upstream executes tool calls by binding MCP arguments onto the
// HTTP operation a tool was synthesised from.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/gatewaylabs/kong-mcp-bridge/pkg/openapi"
	"github.com/gatewaylabs/kong-mcp-bridge/pkg/tools"
)

// DefaultTimeout bounds one upstream call end to end.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of an upstream response is read back.
const maxResponseBytes = 8 << 20

// Client dispatches tool invocations to their upstream routes.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a dispatcher with the given per-call timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// boundArgs is one call's arguments grouped by binding location.
type boundArgs struct {
	path   map[string]any
	query  map[string]any
	header map[string]any
	cookie map[string]any
	body   map[string]any

	explicitBody any
	hasExplicit  bool
}

// Execute binds the arguments, performs the upstream HTTP call and wraps
// the response as an MCP tool result. The returned error is a transport
// failure; upstream HTTP error statuses come back as results with isError
// set.
func (c *Client) Execute(ctx context.Context, tool tools.ToolRecord, args map[string]any) (*mcpgo.CallToolResult, error) {
	req, err := c.buildRequest(ctx, tool, args)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading upstream response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return mcpgo.NewToolResultError(fmt.Sprintf("HTTP %d Error: %s", resp.StatusCode, string(body))), nil
	}
	return mcpgo.NewToolResultText(renderBody(resp.Header.Get("Content-Type"), body)), nil
}

func (c *Client) buildRequest(ctx context.Context, tool tools.ToolRecord, args map[string]any) (*http.Request, error) {
	bound := bindArguments(tool, args)

	target := strings.TrimRight(tool.RouteBasePath, "/") + substitutePathParams(tool.EndpointPath, bound.path)
	if len(bound.query) > 0 {
		target += "?" + encodeQueryParams(bound.query)
	}

	bodyReader, contentType, err := bound.bodyReader(tool.HTTPMethod)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, tool.HTTPMethod, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for name, value := range bound.header {
		req.Header.Set(name, fmt.Sprintf("%v", value))
	}
	if len(bound.cookie) > 0 {
		var cookies strings.Builder
		for name, value := range bound.cookie {
			if cookies.Len() > 0 {
				cookies.WriteString("; ")
			}
			fmt.Fprintf(&cookies, "%s=%v", name, value)
		}
		req.Header.Set("Cookie", cookies.String())
	}
	return req, nil
}

// bindArguments splits the MCP arguments by the x-parameter-in markers of
// the tool's input schema. Arguments without a declared location fall
// through to the request body.
func bindArguments(tool tools.ToolRecord, args map[string]any) boundArgs {
	bound := boundArgs{
		path:   map[string]any{},
		query:  map[string]any{},
		header: map[string]any{},
		cookie: map[string]any{},
		body:   map[string]any{},
	}

	properties, _ := tool.InputSchema["properties"].(map[string]any)
	for name, value := range args {
		if name == "body" {
			bound.explicitBody = value
			bound.hasExplicit = true
			continue
		}
		switch parameterLocation(properties, name) {
		case "path":
			bound.path[name] = value
		case "query":
			bound.query[name] = value
		case "header":
			bound.header[name] = value
		case "cookie":
			bound.cookie[name] = value
		default:
			bound.body[name] = value
		}
	}
	return bound
}

func parameterLocation(properties map[string]any, name string) string {
	prop, ok := properties[name].(map[string]any)
	if !ok {
		return ""
	}
	location, _ := prop[openapi.ExtParameterIn].(string)
	return location
}

// bodyReader encodes the request body for methods that carry one. An
// explicit body argument is preferred verbatim; otherwise the unconsumed
// arguments are sent as a JSON object.
func (b *boundArgs) bodyReader(method string) (io.Reader, string, error) {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, "", nil
	}

	if b.hasExplicit {
		if raw, ok := b.explicitBody.(string); ok {
			return strings.NewReader(raw), "application/json", nil
		}
		encoded, err := json.Marshal(b.explicitBody)
		if err != nil {
			return nil, "", fmt.Errorf("encoding request body: %w", err)
		}
		return bytes.NewReader(encoded), "application/json", nil
	}

	if len(b.body) == 0 {
		return nil, "", nil
	}
	encoded, err := json.Marshal(b.body)
	if err != nil {
		return nil, "", fmt.Errorf("encoding request body: %w", err)
	}
	return bytes.NewReader(encoded), "application/json", nil
}

// substitutePathParams replaces {name} placeholders with URL-escaped
// argument values.
func substitutePathParams(path string, params map[string]any) string {
	for name, value := range params {
		placeholder := "{" + name + "}"
		path = strings.ReplaceAll(path, placeholder, url.PathEscape(fmt.Sprintf("%v", value)))
	}
	return path
}

func encodeQueryParams(params map[string]any) string {
	values := url.Values{}
	for name, value := range params {
		values.Set(name, fmt.Sprintf("%v", value))
	}
	return values.Encode()
}

// renderBody canonicalises JSON payloads and passes everything else
// through untouched.
func renderBody(contentType string, body []byte) string {
	if !strings.Contains(contentType, "json") {
		return string(body)
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return string(body)
	}
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return string(body)
	}
	return string(canonical)
}
