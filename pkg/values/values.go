// Package values merges template default values with user deltas and
// system overrides, and validates the results against the template's
// JSON Schema.
package values

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/wisbric/launchpad/internal/apperr"
)

// Document is an arbitrary JSON object.
type Document = map[string]any

// DeepMerge merges override into base. Objects merge recursively on
// keys; any other pairing (including arrays) is replaced by the
// override. Neither input is mutated.
func DeepMerge(base, override any) any {
	baseObj, baseOK := base.(map[string]any)
	overrideObj, overrideOK := override.(map[string]any)
	if !baseOK || !overrideOK {
		return deepCopy(override)
	}

	merged := make(map[string]any, len(baseObj)+len(overrideObj))
	for k, v := range baseObj {
		merged[k] = deepCopy(v)
	}
	for k, v := range overrideObj {
		if existing, ok := merged[k]; ok {
			merged[k] = DeepMerge(existing, v)
		} else {
			merged[k] = deepCopy(v)
		}
	}
	return merged
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

// MergeScoped builds the final values document: defaults first, then
// the user delta nested under a top-level "user" key, then system
// overrides. System wins everywhere; the user delta wins over defaults
// within the "user" subtree only.
func MergeScoped(defaults, userDelta, systemOverrides Document) Document {
	merged := any(Document{})
	if defaults != nil {
		merged = deepCopy(map[string]any(defaults))
	}
	if userDelta != nil {
		merged = DeepMerge(merged, map[string]any{"user": map[string]any(userDelta)})
	}
	if systemOverrides != nil {
		merged = DeepMerge(merged, map[string]any(systemOverrides))
	}
	result, ok := merged.(map[string]any)
	if !ok {
		return Document{}
	}
	return result
}

// userSubschema extracts properties.user from a values schema. A nil
// return with nil error means the schema defines no user scope.
func userSubschema(schema Document) (Document, error) {
	if schema == nil {
		return nil, nil
	}
	rawProps, ok := schema["properties"]
	if !ok || rawProps == nil {
		return nil, nil
	}
	props, ok := rawProps.(map[string]any)
	if !ok {
		return nil, apperr.Integrity("values schema properties must be an object")
	}
	rawUser, ok := props["user"]
	if !ok || rawUser == nil {
		return nil, nil
	}
	user, ok := rawUser.(map[string]any)
	if !ok {
		return nil, apperr.Integrity("values schema properties.user must be an object")
	}
	return user, nil
}

// ValidateUser validates user-scoped values against the schema's
// properties.user subschema. Absent user values always pass; non-empty
// user values against a schema with no user scope fail.
func ValidateUser(userValues, schema Document) error {
	if userValues == nil {
		return nil
	}
	userSchema, err := userSubschema(schema)
	if err != nil {
		return err
	}
	if userSchema == nil {
		if len(userValues) > 0 {
			return apperr.Integrity("template schema does not define user-scoped values")
		}
		return nil
	}
	return validate(map[string]any(userValues), userSchema, "user values are invalid")
}

// ValidateMerged validates the fully merged document against the full
// template schema. A nil schema passes everything.
func ValidateMerged(merged, schema Document) error {
	if schema == nil {
		return nil
	}
	return validate(map[string]any(merged), map[string]any(schema), "merged values are invalid")
}

func validate(instance, schema map[string]any, msg string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(instance),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindIntegrity, "values schema is not a valid JSON Schema", err)
	}
	if result.Valid() {
		return nil
	}
	reasons := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		reasons = append(reasons, desc.String())
	}
	return apperr.Integrityf("%s: %s", msg, strings.Join(reasons, "; "))
}

// Decode parses a raw JSON column into a Document. Empty and NULL
// columns decode to nil.
func Decode(raw json.RawMessage) (Document, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding values document: %w", err)
	}
	return doc, nil
}
