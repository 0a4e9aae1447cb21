package toolweave

import (
	"sort"
	"strings"
)

// TypeTag is the primitive type of a schema field. Schemas are compared
// structurally via these tags rather than by runtime reflection.
type TypeTag string

const (
	TypeString  TypeTag = "string"
	TypeNumber  TypeTag = "number"
	TypeInteger TypeTag = "integer"
	TypeBoolean TypeTag = "boolean"
	TypeArray   TypeTag = "array"
	TypeObject  TypeTag = "object"
	TypeAny     TypeTag = "any"
)

// FieldSpec describes one named field of a tool schema.
type FieldSpec struct {
	Name     string  `json:"name"`
	Type     TypeTag `json:"type"`
	Required bool    `json:"required"`
}

// Schema is the tagged structural description of a tool's input or output
// payload: a flat field-name to type-tag map with a required set.
type Schema struct {
	Fields []FieldSpec `json:"fields,omitempty"`
}

// ParseSchema builds a Schema from the loose JSON-schema map a tool server
// declares ("properties" + "required"). Unknown or missing type strings
// become TypeAny. A nil map yields an empty schema.
func ParseSchema(raw map[string]interface{}) Schema {
	if raw == nil {
		return Schema{}
	}

	required := map[string]bool{}
	if reqList, ok := raw["required"].([]interface{}); ok {
		for _, entry := range reqList {
			if name, ok := entry.(string); ok {
				required[name] = true
			}
		}
	}

	props, _ := raw["properties"].(map[string]interface{})
	fields := make([]FieldSpec, 0, len(props))
	for name, spec := range props {
		tag := TypeAny
		if specMap, ok := spec.(map[string]interface{}); ok {
			if typeStr, ok := specMap["type"].(string); ok {
				tag = tagFromString(typeStr)
			}
		}
		fields = append(fields, FieldSpec{Name: name, Type: tag, Required: required[name]})
	}
	// Map iteration is unordered; keep fields stable for comparison and
	// rendering.
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	return Schema{Fields: fields}
}

func tagFromString(s string) TypeTag {
	switch TypeTag(strings.ToLower(s)) {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject:
		return TypeTag(strings.ToLower(s))
	default:
		return TypeAny
	}
}

// Field returns the spec for a named field.
func (s Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// RequiredFields returns the subset of fields marked required.
func (s Schema) RequiredFields() []FieldSpec {
	var out []FieldSpec
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// IsEmpty reports whether the schema declares no fields.
func (s Schema) IsEmpty() bool {
	return len(s.Fields) == 0
}

// String renders the schema as "name:type" pairs, used in embedding text
// and proposer prompts.
func (s Schema) String() string {
	if len(s.Fields) == 0 {
		return "(none)"
	}
	parts := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		part := f.Name + ":" + string(f.Type)
		if f.Required {
			part += "!"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

// CompatibleTag reports whether a source field tag can be fed into a target
// field tag without transformation. Integers widen to numbers; TypeAny on
// either side matches everything.
func CompatibleTag(source, target TypeTag) bool {
	if source == target || source == TypeAny || target == TypeAny {
		return true
	}
	return source == TypeInteger && target == TypeNumber
}

// SupersetCompatible reports whether a source output schema is a
// superset-compatible match for a target input schema: every required
// target field exists in the source under the same name with a compatible
// type. A target with no required fields is trivially satisfied.
func SupersetCompatible(sourceOutput, targetInput Schema) bool {
	for _, want := range targetInput.RequiredFields() {
		got, ok := sourceOutput.Field(want.Name)
		if !ok || !CompatibleTag(got.Type, want.Type) {
			return false
		}
	}
	return true
}

// DeriveHint builds a translation hint from the field-name/type overlap
// between a source output schema and a target input schema. Exact name
// matches map directly; otherwise a normalized (case- and underscore-
// insensitive) match becomes a rename. Returns nil when no required target
// field can be mapped at all.
func DeriveHint(sourceOutput, targetInput Schema) *TranslationHint {
	bySource := map[string]string{}
	normalized := map[string]string{}
	for _, f := range sourceOutput.Fields {
		bySource[f.Name] = f.Name
		normalized[normalizeFieldName(f.Name)] = f.Name
	}

	var mappings []FieldMapping
	mappedRequired := false
	for _, target := range targetInput.Fields {
		sourceName, ok := bySource[target.Name]
		if !ok {
			sourceName, ok = normalized[normalizeFieldName(target.Name)]
		}
		if !ok {
			continue
		}
		if sourceField, exists := sourceOutput.Field(sourceName); exists {
			if !CompatibleTag(sourceField.Type, target.Type) {
				continue
			}
		}
		mappings = append(mappings, FieldMapping{
			TargetField: target.Name,
			SourceField: sourceName,
			Required:    target.Required,
		})
		if target.Required {
			mappedRequired = true
		}
	}

	if len(mappings) == 0 || (!mappedRequired && len(targetInput.RequiredFields()) > 0) {
		return nil
	}
	return &TranslationHint{Mappings: mappings}
}

func normalizeFieldName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "")
}
