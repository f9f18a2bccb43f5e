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
	"errors"
	"log"
	"sort"

	"github.com/gatewaylabs/kong-mcp-bridge/pkg/auth"
	"github.com/gatewaylabs/kong-mcp-bridge/pkg/config"
)

// Lookup failure sentinels. The server maps both to the same wire error so
// tool names do not leak across identities.
var (
	ErrToolNotFound  = errors.New("tool not found")
	ErrToolForbidden = errors.New("tool access denied")
)

// Registry is the authoritative name→tool map. It is built once from the
// configuration and never mutated afterwards; a config reload builds a new
// Registry and swaps it in whole.
type Registry struct {
	byName map[string]ToolRecord
	names  []string // sorted, for stable listings
}

// Build synthesises tools for every enabled route. Synthesis errors are
// fatal for their route only: the route yields no tools, the rest of the
// registry still builds. Duplicate names keep the first record; tools past
// the max_tools cap are dropped.
func Build(cfg config.ServerConfig, routes []config.RouteToolConfig) *Registry {
	r := &Registry{byName: make(map[string]ToolRecord)}

	for _, route := range routes {
		if !route.IsEnabled() {
			continue
		}
		records, err := Synthesize(route, cfg.OAuth.ToolScopeFiltering)
		if err != nil {
			log.Printf("skipping tools for route %s: %v", route.RouteID, err)
			continue
		}
		for _, record := range records {
			if _, exists := r.byName[record.Name]; exists {
				log.Printf("dropping duplicate tool %s (route %s)", record.Name, route.RouteID)
				continue
			}
			if len(r.byName) >= cfg.MaxTools {
				log.Printf("dropping tool %s: max_tools limit of %d reached", record.Name, cfg.MaxTools)
				continue
			}
			r.byName[record.Name] = record
			r.names = append(r.names, record.Name)
		}
	}

	sort.Strings(r.names)
	return r
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.byName)
}

// List returns the tools visible to the given identity, in stable name
// order. The same filter gates Lookup, so a listed tool is always
// callable by the identity that listed it.
func (r *Registry) List(claims *auth.ClaimSet) []ToolRecord {
	visible := make([]ToolRecord, 0, len(r.names))
	for _, name := range r.names {
		record := r.byName[name]
		if auth.SatisfiesAll(claims, record.AccessRequirements) {
			visible = append(visible, record)
		}
	}
	return visible
}

// Lookup resolves a tool by name for the given identity. Unknown names
// return ErrToolNotFound; known but inaccessible tools return
// ErrToolForbidden.
func (r *Registry) Lookup(name string, claims *auth.ClaimSet) (ToolRecord, error) {
	record, ok := r.byName[name]
	if !ok {
		return ToolRecord{}, ErrToolNotFound
	}
	if !auth.SatisfiesAll(claims, record.AccessRequirements) {
		return ToolRecord{}, ErrToolForbidden
	}
	return record, nil
}
