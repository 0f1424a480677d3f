// Package yamlutil provides strict decoding helpers for configuration
// files. Unknown fields are rejected so typos surface at load time instead
// of silently falling back to defaults.
package yamlutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalStrict decodes YAML, rejecting unknown fields.
func UnmarshalStrict(data []byte, v interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(v); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "field") && strings.Contains(errStr, "not found") {
			return fmt.Errorf("unknown configuration field (check for typos): %w", err)
		}
		return err
	}
	return nil
}

// UnmarshalStrictJSON decodes JSON, rejecting unknown fields.
func UnmarshalStrictJSON(data []byte, v interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		return err
	}
	// Trailing garbage after the document is also a mistake worth flagging.
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("unexpected trailing content in JSON configuration")
	}
	return nil
}
