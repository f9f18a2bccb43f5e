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
	"encoding/json"
	"fmt"
	"os"
)

// BridgeFile is the on-disk configuration: one server block plus the routed
// upstreams whose OpenAPI documents become MCP tools.
type BridgeFile struct {
	Server ServerConfig      `json:"server"`
	Routes []RouteToolConfig `json:"routes"`
}

// Validate validates the server block and every route. Route validation
// errors are returned; synthesis-time failures inside a route's OpenAPI
// document are handled later and are not fatal.
func (b *BridgeFile) Validate() error {
	if err := b.Server.Validate(); err != nil {
		return err
	}
	for i := range b.Routes {
		if err := b.Routes[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LoadBridgeFile reads and validates a bridge configuration file.
func LoadBridgeFile(filename string) (*BridgeFile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var file BridgeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &file, nil
}
