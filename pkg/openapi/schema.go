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

package openapi

import (
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// Extension markers attached to converted fragments for downstream binding.
const (
	// ExtParameterIn records the OpenAPI parameter location (path, query,
	// header, cookie) on a property so the dispatcher can bind it.
	ExtParameterIn = "x-parameter-in"

	// ExtContentType records the selected request-body content type when it
	// is not the application/json default.
	ExtContentType = "x-content-type"
)

// jsonContentTypes are the media types treated as JSON request bodies, in
// preference order.
var jsonContentTypes = []string{"application/json", "application/vnd.api+json", "text/json"}

// maxSchemaDepth bounds recursion through self-referential schemas.
const maxSchemaDepth = 16

// ConvertSchemaRef converts an OpenAPI schema into a JSON-Schema fragment.
// Unknown or unresolvable constructs degrade to a permissive empty schema;
// conversion never fails.
func ConvertSchemaRef(ref *openapi3.SchemaRef) map[string]any {
	return convertSchema(ref, 0)
}

func convertSchema(ref *openapi3.SchemaRef, depth int) map[string]any {
	frag := map[string]any{}
	if ref == nil || ref.Value == nil || depth > maxSchemaDepth {
		return frag
	}
	s := ref.Value

	if s.Type != "" {
		frag["type"] = s.Type
	}
	if s.Format != "" {
		frag["format"] = s.Format
	}
	if s.Description != "" {
		frag["description"] = s.Description
	}
	if s.Default != nil {
		frag["default"] = s.Default
	}
	if s.Example != nil {
		frag["example"] = s.Example
	}
	if len(s.Enum) > 0 {
		frag["enum"] = s.Enum
	}

	// String constraints.
	if s.MinLength > 0 {
		frag["minLength"] = s.MinLength
	}
	if s.MaxLength != nil {
		frag["maxLength"] = *s.MaxLength
	}
	if s.Pattern != "" {
		frag["pattern"] = s.Pattern
	}

	// Numeric constraints.
	if s.Min != nil {
		frag["minimum"] = *s.Min
	}
	if s.Max != nil {
		frag["maximum"] = *s.Max
	}
	if s.ExclusiveMin {
		frag["exclusiveMinimum"] = true
	}
	if s.ExclusiveMax {
		frag["exclusiveMaximum"] = true
	}
	if s.MultipleOf != nil {
		frag["multipleOf"] = *s.MultipleOf
	}

	// Array constraints.
	if s.MinItems > 0 {
		frag["minItems"] = s.MinItems
	}
	if s.MaxItems != nil {
		frag["maxItems"] = *s.MaxItems
	}
	if s.UniqueItems {
		frag["uniqueItems"] = true
	}
	if s.Items != nil {
		frag["items"] = convertSchema(s.Items, depth+1)
	}

	// Object constraints.
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, propRef := range s.Properties {
			props[name] = convertSchema(propRef, depth+1)
		}
		frag["properties"] = props
	}
	if len(s.Required) > 0 {
		frag["required"] = s.Required
	}
	if s.AdditionalProperties.Has != nil {
		frag["additionalProperties"] = *s.AdditionalProperties.Has
	} else if s.AdditionalProperties.Schema != nil {
		frag["additionalProperties"] = convertSchema(s.AdditionalProperties.Schema, depth+1)
	}

	return frag
}

// ConvertParameter converts a parameter into a JSON-Schema fragment with an
// x-parameter-in marker recording its location.
func ConvertParameter(p *openapi3.Parameter) map[string]any {
	frag := ConvertSchemaRef(p.Schema)
	if _, ok := frag["description"]; !ok && p.Description != "" {
		frag["description"] = p.Description
	}
	frag[ExtParameterIn] = p.In
	return frag
}

// SelectRequestBody picks the request-body schema for a tool: JSON media
// types are preferred, otherwise the first content type carrying a schema
// (in stable order). Returns the converted fragment, whether the body is
// required, and whether a body schema exists at all.
func SelectRequestBody(rb *openapi3.RequestBody) (map[string]any, bool, bool) {
	if rb == nil || len(rb.Content) == 0 {
		return nil, false, false
	}

	contentType := ""
	for _, ct := range jsonContentTypes {
		if mt, ok := rb.Content[ct]; ok && mt.Schema != nil {
			contentType = ct
			break
		}
	}
	if contentType == "" {
		names := make([]string, 0, len(rb.Content))
		for name, mt := range rb.Content {
			if mt != nil && mt.Schema != nil {
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			return nil, false, false
		}
		sort.Strings(names)
		contentType = names[0]
	}

	frag := ConvertSchemaRef(rb.Content[contentType].Schema)
	if _, ok := frag["description"]; !ok && rb.Description != "" {
		frag["description"] = rb.Description
	}
	if contentType != "application/json" {
		frag[ExtContentType] = contentType
	}
	return frag, rb.Required, true
}
