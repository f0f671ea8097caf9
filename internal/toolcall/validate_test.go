package toolcall

import "testing"

func TestValidateArguments_EmptySchemaAlwaysPasses(t *testing.T) {
	if err := ValidateArguments(nil, []byte(`{"anything":1}`)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateArguments_RejectsMismatch(t *testing.T) {
	schema := []byte(`{"type":"object","required":["query"],"properties":{"query":{"type":"string"}}}`)
	err := ValidateArguments(schema, []byte(`{}`))
	if err == nil {
		t.Fatal("expected validation error for missing required field")
	}
}

func TestValidateArguments_AcceptsMatch(t *testing.T) {
	schema := []byte(`{"type":"object","required":["query"],"properties":{"query":{"type":"string"}}}`)
	err := ValidateArguments(schema, []byte(`{"query":"go"}`))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateArguments_CachesCompiledSchema(t *testing.T) {
	schema := []byte(`{"type":"object"}`)
	if err := ValidateArguments(schema, []byte(`{}`)); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := ValidateArguments(schema, []byte(`{}`)); err != nil {
		t.Fatalf("second call (cached): %v", err)
	}
}
