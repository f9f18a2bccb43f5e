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

// Package openapi loads inline OpenAPI 3.x / Swagger 2.0 documents and
// converts their operations into JSON-Schema fragments for MCP tool
// synthesis. Swagger 2.0 documents are converted to the 3.x model first so
// both versions share one conversion path.
package openapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
)

// Operation is one HTTP operation enumerated from a document.
type Operation struct {
	Path        string
	Method      string
	OperationID string
	Summary     string
	Description string
	Tags        []string
	Parameters  []*openapi3.Parameter
	RequestBody *openapi3.RequestBody
	Security    *openapi3.SecurityRequirements
}

// methodOrder is the closed set of HTTP methods considered during
// enumeration, in stable output order.
var methodOrder = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

// Load parses an inline JSON OpenAPI document. It rejects empty input,
// documents without an `openapi` or `swagger` version marker, and documents
// without a `paths` object. Validation beyond that is deliberately
// permissive: a parseable document always yields a model.
func Load(spec string) (*openapi3.T, error) {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return nil, fmt.Errorf("empty API specification")
	}

	var probe struct {
		OpenAPI string          `json:"openapi"`
		Swagger string          `json:"swagger"`
		Paths   json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, fmt.Errorf("specification is not valid JSON: %w", err)
	}
	if probe.OpenAPI == "" && probe.Swagger == "" {
		return nil, fmt.Errorf("specification has neither an openapi nor a swagger version marker")
	}
	if len(probe.Paths) == 0 || string(probe.Paths) == "null" {
		return nil, fmt.Errorf("specification has no paths object")
	}

	if strings.HasPrefix(probe.Swagger, "2") {
		var doc2 openapi2.T
		if err := json.Unmarshal([]byte(trimmed), &doc2); err != nil {
			return nil, fmt.Errorf("failed to parse Swagger 2.0 document: %w", err)
		}
		doc, err := openapi2conv.ToV3(&doc2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert Swagger 2.0 document: %w", err)
		}
		return doc, nil
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData([]byte(trimmed))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}
	return doc, nil
}

// Operations enumerates all operations of the document across the closed
// HTTP method set. Output order is stable: paths sorted lexically, methods
// in methodOrder.
func Operations(doc *openapi3.T) []Operation {
	if doc == nil || doc.Paths == nil {
		return nil
	}

	pathMap := doc.Paths.Map()
	paths := make([]string, 0, len(pathMap))
	for p := range pathMap {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var ops []Operation
	for _, path := range paths {
		item := pathMap[path]
		if item == nil {
			continue
		}
		for _, method := range methodOrder {
			op := operationForMethod(item, method)
			if op == nil {
				continue
			}
			ops = append(ops, Operation{
				Path:        path,
				Method:      method,
				OperationID: op.OperationID,
				Summary:     op.Summary,
				Description: op.Description,
				Tags:        op.Tags,
				Parameters:  mergeParameters(item.Parameters, op.Parameters),
				RequestBody: requestBodyValue(op),
				Security:    op.Security,
			})
		}
	}
	return ops
}

func operationForMethod(item *openapi3.PathItem, method string) *openapi3.Operation {
	switch method {
	case "GET":
		return item.Get
	case "POST":
		return item.Post
	case "PUT":
		return item.Put
	case "PATCH":
		return item.Patch
	case "DELETE":
		return item.Delete
	case "HEAD":
		return item.Head
	case "OPTIONS":
		return item.Options
	default:
		return nil
	}
}

// mergeParameters combines path-item parameters with operation parameters;
// the operation level wins on a (name, in) collision.
func mergeParameters(pathLevel, opLevel openapi3.Parameters) []*openapi3.Parameter {
	var params []*openapi3.Parameter
	seen := make(map[string]bool)
	for _, ref := range opLevel {
		if ref == nil || ref.Value == nil {
			continue
		}
		params = append(params, ref.Value)
		seen[ref.Value.In+"\x00"+ref.Value.Name] = true
	}
	for _, ref := range pathLevel {
		if ref == nil || ref.Value == nil {
			continue
		}
		if seen[ref.Value.In+"\x00"+ref.Value.Name] {
			continue
		}
		params = append(params, ref.Value)
	}
	return params
}

func requestBodyValue(op *openapi3.Operation) *openapi3.RequestBody {
	if op.RequestBody == nil {
		return nil
	}
	return op.RequestBody.Value
}
