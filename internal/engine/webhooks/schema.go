package webhooks

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed webhook.schema.json
var webhookSchema []byte

const webhookSchemaURL = "hookrelay://schemas/webhook.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc any
		if err := json.Unmarshal(webhookSchema, &doc); err != nil {
			schemaErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource(webhookSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(webhookSchemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidateDocument checks a raw create/update body against the webhook schema
// before it is decoded into typed input.
func ValidateDocument(raw []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("schema compilation error: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return &ValidationError{Field: "body", Message: "request body must be valid JSON"}
	}

	if err := schema.Validate(doc); err != nil {
		return &ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}
