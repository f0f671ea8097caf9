package toolcall

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var schemaCache sync.Map

func compileSchema(schema []byte) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// ValidateArguments validates a call's arguments against a tool's
// input_schema, caching compiled schemas by content so repeat
// dispatches of the same tool avoid recompilation.
func ValidateArguments(inputSchema, arguments json.RawMessage) error {
	if len(inputSchema) == 0 {
		return nil
	}

	schema, err := compileSchema(inputSchema)
	if err != nil {
		return fmt.Errorf("compile input schema: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(arguments, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("arguments do not match input schema: %w", err)
	}
	return nil
}
