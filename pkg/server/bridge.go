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

// Package server binds the JSON-RPC engine, the tool registry, the OAuth
// validator and the upstream dispatcher into one HTTP handler.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/gatewaylabs/kong-mcp-bridge/pkg/auth"
	"github.com/gatewaylabs/kong-mcp-bridge/pkg/config"
	"github.com/gatewaylabs/kong-mcp-bridge/pkg/mcp"
	"github.com/gatewaylabs/kong-mcp-bridge/pkg/tools"
	"github.com/gatewaylabs/kong-mcp-bridge/pkg/upstream"
)

// ProtectedResourcePath serves the OAuth protected resource metadata.
const ProtectedResourcePath = "/.well-known/oauth-protected-resource"

// maxRequestBytes caps the size of one JSON-RPC request body.
const maxRequestBytes = 1 << 20

// snapshot is one immutable configuration generation. Requests read the
// current snapshot once and use it for their whole lifetime, so a reload
// never mixes old tools with new auth settings.
type snapshot struct {
	cfg       config.ServerConfig
	registry  *tools.Registry
	validator *auth.Validator
}

// Bridge is the MCP endpoint handler. It is safe for concurrent use and
// supports atomic configuration reloads.
type Bridge struct {
	dispatcher *upstream.Client
	current    atomic.Pointer[snapshot]
}

// NewBridge builds a bridge from a validated configuration file.
func NewBridge(file *config.BridgeFile) *Bridge {
	b := &Bridge{dispatcher: upstream.NewClient(upstream.DefaultTimeout)}
	b.install(file)
	return b
}

// Reload swaps in a new configuration generation. In-flight requests keep
// the snapshot they started with.
func (b *Bridge) Reload(file *config.BridgeFile) {
	old := b.install(file)
	if old != nil && old.validator != nil {
		old.validator.Close()
	}
}

func (b *Bridge) install(file *config.BridgeFile) *snapshot {
	next := &snapshot{
		cfg:      file.Server,
		registry: tools.Build(file.Server, file.Routes),
	}
	if file.Server.OAuth.Enabled {
		next.validator = auth.NewValidator(file.Server.OAuth)
	}
	log.Printf("configuration loaded: %d tools across %d routes", next.registry.Len(), len(file.Routes))
	return b.current.Swap(next)
}

// Close releases the current snapshot's resources.
func (b *Bridge) Close() {
	if snap := b.current.Load(); snap != nil && snap.validator != nil {
		snap.validator.Close()
	}
}

// ServeHTTP implements the MCP endpoint: GET returns the capability
// advertisement, POST carries JSON-RPC, and the well-known metadata path
// points clients at the authorization servers.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := b.current.Load()

	if r.URL.Path == ProtectedResourcePath {
		b.serveProtectedResourceMetadata(w, r, snap)
		return
	}

	switch r.Method {
	case http.MethodGet:
		b.serveDiscovery(w, snap)
	case http.MethodPost:
		b.serveRPC(w, r, snap)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// serveDiscovery answers plain GET requests with the server identity and
// capabilities so clients can probe the endpoint without a session.
func (b *Bridge) serveDiscovery(w http.ResponseWriter, snap *snapshot) {
	result := mcp.DiscoveryResult{
		ServerInfo: mcpgo.Implementation{
			Name:    snap.cfg.ServerName,
			Version: snap.cfg.ServerVersion,
		},
	}
	writeJSON(w, http.StatusOK, result)
}

// serveProtectedResourceMetadata implements RFC 9728 for the bridge
// endpoint, advertising which authorization servers issue usable tokens.
func (b *Bridge) serveProtectedResourceMetadata(w http.ResponseWriter, r *http.Request, snap *snapshot) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	metadata := map[string]any{
		"resource":              baseURL(r),
		"authorization_servers": snap.cfg.OAuth.AuthorizationServers,
	}
	writeJSON(w, http.StatusOK, metadata)
}

func (b *Bridge) serveRPC(w http.ResponseWriter, r *http.Request, snap *snapshot) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeResponse(w, http.StatusOK, mcp.NewError(nil, mcp.CodeParseError, "Parse error", "Unable to read request body"))
		return
	}

	req, errResp := mcp.ParseRequest(body)
	if errResp != nil {
		writeResponse(w, http.StatusOK, errResp)
		return
	}

	claims, authErr := b.authenticate(r, snap)
	if authErr != nil {
		w.Header().Set("WWW-Authenticate",
			fmt.Sprintf("Bearer resource_metadata=%q", baseURL(r)+ProtectedResourcePath))
		writeResponse(w, http.StatusUnauthorized,
			mcp.NewError(req, mcp.CodeAuthFailed, "Authentication failed", authErr.Reason))
		return
	}

	if req.IsNotification() {
		// Notifications never produce a response body, known or not.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case mcp.MethodInitialize:
		b.handleInitialize(w, req, snap)
	case mcp.MethodToolsList:
		b.handleToolsList(w, req, snap, claims)
	case mcp.MethodToolsCall:
		b.handleToolsCall(w, r, req, snap, claims)
	default:
		writeResponse(w, http.StatusOK,
			mcp.NewError(req, mcp.CodeMethodNotFound, "Method not found", req.Method))
	}
}

// authenticate validates the bearer token when OAuth is enabled. With
// OAuth off every caller is the anonymous identity.
func (b *Bridge) authenticate(r *http.Request, snap *snapshot) (*auth.ClaimSet, *auth.AuthError) {
	if snap.validator == nil {
		return auth.Anonymous(), nil
	}
	return snap.validator.ValidateRequest(r)
}

func (b *Bridge) handleInitialize(w http.ResponseWriter, req *mcp.Request, snap *snapshot) {
	result := mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools: mcp.ToolsCapability{ListChanged: false},
		},
		ServerInfo: mcpgo.Implementation{
			Name:    snap.cfg.ServerName,
			Version: snap.cfg.ServerVersion,
		},
	}
	writeResponse(w, http.StatusOK, mcp.NewResult(req, result))
}

func (b *Bridge) handleToolsList(w http.ResponseWriter, req *mcp.Request, snap *snapshot, claims *auth.ClaimSet) {
	visible := snap.registry.List(claims)
	summaries := make([]mcp.ToolSummary, 0, len(visible))
	for _, record := range visible {
		summaries = append(summaries, mcp.ToolSummary{
			Name:        record.Name,
			Description: record.Description,
			InputSchema: record.InputSchema,
		})
	}
	writeResponse(w, http.StatusOK, mcp.NewResult(req, mcp.ListToolsResult{Tools: summaries}))
}

func (b *Bridge) handleToolsCall(w http.ResponseWriter, r *http.Request, req *mcp.Request, snap *snapshot, claims *auth.ClaimSet) {
	params, err := mcp.ParseCallToolParams(req.Params)
	if err != nil {
		writeResponse(w, http.StatusOK,
			mcp.NewError(req, mcp.CodeInvalidParams, "Invalid params", "Malformed tools/call params"))
		return
	}
	if params.Name == "" {
		writeResponse(w, http.StatusOK,
			mcp.NewError(req, mcp.CodeInvalidParams, "Invalid params", "Missing tool name"))
		return
	}

	record, lookupErr := snap.registry.Lookup(params.Name, claims)
	if lookupErr != nil {
		// Not-found and forbidden are deliberately indistinguishable.
		writeResponse(w, http.StatusNotFound,
			mcp.NewError(req, mcp.CodeAuthFailed, "Tool not found or access denied", ""))
		return
	}

	result, execErr := b.dispatcher.Execute(r.Context(), record, params.Arguments)
	if execErr != nil {
		log.Printf("tool %s failed: %v", record.Name, execErr)
		writeResponse(w, http.StatusInternalServerError,
			mcp.NewError(req, mcp.CodeToolExecutionFailed, "Tool execution failed", execErr.Error()))
		return
	}
	writeResponse(w, http.StatusOK, mcp.NewResult(req, result))
}

// baseURL reconstructs the externally visible origin of the request.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimRight(r.Host, "/")
}

func writeResponse(w http.ResponseWriter, status int, resp *mcp.Response) {
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
