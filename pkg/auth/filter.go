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
	"fmt"
	"strings"

	"github.com/gatewaylabs/kong-mcp-bridge/pkg/config"
)

// Satisfies evaluates one requirement against a claim set. The claim value
// is normalised into a token set: strings split on whitespace, arrays taken
// element-wise, other scalars stringified.
func Satisfies(claims *ClaimSet, req config.Requirement) bool {
	value, ok := claims.Get(req.ClaimName)
	if !ok {
		return false
	}

	tokens := claimTokens(value)
	matched := 0
	for _, want := range req.ClaimValues {
		if tokens[want] {
			matched++
		}
	}

	if req.MatchType == config.MatchAll {
		return matched == len(req.ClaimValues)
	}
	return matched > 0
}

// SatisfiesAll applies a requirement list: empty lists are public, multiple
// requirements are AND-combined, and the anonymous sentinel (OAuth
// disabled) passes unconditionally. Used identically at list time and call
// time.
func SatisfiesAll(claims *ClaimSet, reqs []config.Requirement) bool {
	if len(reqs) == 0 {
		return true
	}
	if claims.IsAnonymous() {
		return true
	}
	for _, req := range reqs {
		if !Satisfies(claims, req) {
			return false
		}
	}
	return true
}

func claimTokens(value any) map[string]bool {
	tokens := make(map[string]bool)
	switch v := value.(type) {
	case string:
		for _, t := range strings.Fields(v) {
			tokens[t] = true
		}
	case []string:
		for _, t := range v {
			tokens[t] = true
		}
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				tokens[s] = true
			} else {
				tokens[fmt.Sprint(e)] = true
			}
		}
	default:
		tokens[fmt.Sprint(v)] = true
	}
	return tokens
}
