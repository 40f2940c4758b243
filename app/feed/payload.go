package feed

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed processed_topic.schema.json
var processedTopicSchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// MarshalProcessedTopic encodes a topic and checks the result against the
// stored payload schema.
func MarshalProcessedTopic(topic *ProcessedTopic) ([]byte, error) {
	if topic == nil {
		return nil, fmt.Errorf("processed topic is nil")
	}

	payload, err := json.Marshal(topic)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal processed topic: %w", err)
	}

	if err := ValidatePayload(payload); err != nil {
		return nil, err
	}

	return payload, nil
}

func UnmarshalProcessedTopic(payload []byte) (*ProcessedTopic, error) {
	var topic ProcessedTopic
	if err := json.Unmarshal(payload, &topic); err != nil {
		return nil, fmt.Errorf("failed to unmarshal processed topic: %w", err)
	}
	return &topic, nil
}

func ValidatePayload(payload []byte) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("processed_topic.schema.json", strings.NewReader(processedTopicSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("processed_topic.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}
