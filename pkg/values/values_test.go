package values

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wisbric/launchpad/internal/apperr"
)

func TestDeepMergeObjects(t *testing.T) {
	base := map[string]any{
		"replicas": float64(1),
		"image":    map[string]any{"repo": "nginx", "tag": "1.25"},
		"ports":    []any{float64(80)},
	}
	override := map[string]any{
		"image": map[string]any{"tag": "1.27"},
		"ports": []any{float64(8080), float64(8443)},
	}
	want := map[string]any{
		"replicas": float64(1),
		"image":    map[string]any{"repo": "nginx", "tag": "1.27"},
		"ports":    []any{float64(8080), float64(8443)},
	}
	got := DeepMerge(base, override)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DeepMerge() mismatch (-want +got):\n%s", diff)
	}
}

func TestDeepMergeScalarReplaces(t *testing.T) {
	if got := DeepMerge(map[string]any{"a": float64(1)}, "scalar"); got != "scalar" {
		t.Errorf("DeepMerge(obj, scalar) = %v, want scalar", got)
	}
}

func TestDeepMergeIdempotent(t *testing.T) {
	x := map[string]any{
		"a": map[string]any{"b": []any{float64(1), float64(2)}},
		"c": "v",
		"d": nil,
	}
	if diff := cmp.Diff(any(x), DeepMerge(x, x)); diff != "" {
		t.Errorf("DeepMerge(x, x) != x (-want +got):\n%s", diff)
	}
}

func TestDeepMergeDoesNotMutateInputs(t *testing.T) {
	base := map[string]any{"nested": map[string]any{"keep": true}}
	override := map[string]any{"nested": map[string]any{"add": true}}
	_ = DeepMerge(base, override)
	if _, ok := base["nested"].(map[string]any)["add"]; ok {
		t.Error("DeepMerge mutated base")
	}
}

func TestMergeScopedPrecedence(t *testing.T) {
	defaults := Document{
		"replicas": float64(2),
		"user":     map[string]any{"message": "default", "theme": "light"},
	}
	user := Document{"message": "hello"}
	system := Document{
		"replicas": float64(3),
		"user":     map[string]any{"theme": "locked"},
	}
	want := Document{
		"replicas": float64(3),
		"user":     map[string]any{"message": "hello", "theme": "locked"},
	}
	got := MergeScoped(defaults, user, system)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MergeScoped() mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeScopedNilInputs(t *testing.T) {
	got := MergeScoped(nil, Document{"message": "hi"}, nil)
	want := Document{"user": map[string]any{"message": "hi"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MergeScoped(nil, user, nil) mismatch (-want +got):\n%s", diff)
	}
	if got := MergeScoped(nil, nil, nil); len(got) != 0 {
		t.Errorf("MergeScoped(nil, nil, nil) = %v, want empty", got)
	}
}

var testSchema = Document{
	"type": "object",
	"properties": map[string]any{
		"user": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
			"additionalProperties": false,
		},
	},
}

func TestValidateUser(t *testing.T) {
	if err := ValidateUser(Document{"message": "hi"}, testSchema); err != nil {
		t.Errorf("valid user values rejected: %v", err)
	}
	if err := ValidateUser(nil, testSchema); err != nil {
		t.Errorf("absent user values rejected: %v", err)
	}

	err := ValidateUser(Document{"message": float64(7)}, testSchema)
	if !apperr.IsKind(err, apperr.KindIntegrity) {
		t.Errorf("wrong-typed user values: err = %v, want integrity", err)
	}

	err = ValidateUser(Document{"unknown": true}, testSchema)
	if !apperr.IsKind(err, apperr.KindIntegrity) {
		t.Errorf("additional property: err = %v, want integrity", err)
	}
}

func TestValidateUserWithoutUserSchema(t *testing.T) {
	schema := Document{"type": "object"}
	if err := ValidateUser(Document{}, schema); err != nil {
		t.Errorf("empty user values against scopeless schema rejected: %v", err)
	}
	err := ValidateUser(Document{"message": "hi"}, schema)
	if !apperr.IsKind(err, apperr.KindIntegrity) {
		t.Errorf("non-empty user values against scopeless schema: err = %v, want integrity", err)
	}
}

func TestValidateMerged(t *testing.T) {
	merged := MergeScoped(nil, Document{"message": "hi"}, nil)
	if err := ValidateMerged(merged, testSchema); err != nil {
		t.Errorf("valid merged document rejected: %v", err)
	}

	bad := Document{"user": map[string]any{"message": false}}
	err := ValidateMerged(bad, testSchema)
	if !apperr.IsKind(err, apperr.KindIntegrity) {
		t.Errorf("invalid merged document: err = %v, want integrity", err)
	}

	if err := ValidateMerged(bad, nil); err != nil {
		t.Errorf("nil schema should pass: %v", err)
	}
}

func TestDecode(t *testing.T) {
	doc, err := Decode([]byte(`{"a": 1}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if doc["a"] != float64(1) {
		t.Errorf("Decode()[a] = %v, want 1", doc["a"])
	}
	if doc, err := Decode(nil); err != nil || doc != nil {
		t.Errorf("Decode(nil) = %v, %v; want nil, nil", doc, err)
	}
}
