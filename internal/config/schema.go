package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is the JSON Schema for the configuration file
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "telegram": {
      "type": "object",
      "properties": {
        "bot_token": { "type": "string" },
        "api_endpoint": { "type": "string" },
        "file_endpoint": { "type": "string" },
        "allowlist": {
          "type": ["array", "null"],
          "items": { "type": "integer" }
        },
        "poll_timeout": { "type": "integer", "minimum": 0 }
      }
    },
    "storage": {
      "type": "object",
      "properties": {
        "backend": { "type": "string", "enum": ["disk", "memory"] },
        "dir": { "type": "string" },
        "max_upload_bytes": { "type": "integer", "minimum": 0 },
        "sweep_schedule": { "type": "string" },
        "orphan_max_age": { "type": "integer", "minimum": 0 }
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": { "type": "string", "enum": ["debug", "info", "warn", "error"] },
        "file": { "type": "string" },
        "console": { "type": "boolean" },
        "pretty": { "type": "boolean" },
        "redaction": { "type": "boolean" },
        "audit_file": { "type": "string" }
      }
    },
    "metrics": {
      "type": "object",
      "properties": {
        "enabled": { "type": "boolean" },
        "host": { "type": "string" },
        "port": { "type": "integer", "minimum": 1, "maximum": 65535 }
      }
    },
    "data_dir": { "type": "string" }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(Schema)

// ValidateSchema checks raw configuration JSON against Schema
func ValidateSchema(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}

	return nil
}
