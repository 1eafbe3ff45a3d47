package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// catalogSchema is the structural contract for catalog documents. Semantic
// checks (referential integrity, rule variants) happen after decoding.
const catalogSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["protocols"],
  "properties": {
    "version": {"type": "string"},
    "sinks": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "protocols": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name", "gates"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "outputs_to": {"type": "array", "items": {"type": "string", "minLength": 1}},
          "gates": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["id", "rule"],
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "name": {"type": "string"},
                "rule": {"type": "object", "required": ["kind"]}
              }
            }
          }
        }
      }
    }
  }
}`

const catalogSchemaURL = "https://govalid.schemas.local/catalog.schema.json"

var compiledCatalogSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(catalogSchemaURL, strings.NewReader(catalogSchema)); err != nil {
		panic(fmt.Sprintf("catalog schema load failed: %v", err))
	}
	compiled, err := c.Compile(catalogSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("catalog schema compile failed: %v", err))
	}
	return compiled
}

// validateSchema checks the raw document shape before typed decoding.
// The YAML tree is round-tripped through JSON so the validator sees the
// value kinds it expects.
func validateSchema(data []byte) error {
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}

	jsonBytes, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("normalize catalog: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.UseNumber()
	var normalized any
	if err := dec.Decode(&normalized); err != nil {
		return fmt.Errorf("normalize catalog: %w", err)
	}

	if err := compiledCatalogSchema.Validate(normalized); err != nil {
		return &MalformedCatalogError{
			Subject: "catalog document",
			Reason:  err.Error(),
			Hint:    "check the document against the catalog schema",
		}
	}
	return nil
}
