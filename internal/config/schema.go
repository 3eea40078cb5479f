// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the generated config schema.
const SchemaID = "https://cms.dev/schemas/config.schema.json"

var (
	schemaOnce     sync.Once
	schemaCompiled *jschema.Schema
	schemaErr      error
)

// GenerateSchema returns the JSON Schema of the config file.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "CMS configuration"
	schema.Description = "Schema for the cms YAML config file"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").Wrap(err)
	}
	return data, nil
}

// ValidateFile checks YAML config data against the generated schema.
func ValidateFile(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return oops.Code("CONFIG_FILE_EMPTY").Errorf("config file is empty")
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").Wrap(err)
	}

	// Round-trip through JSON so numbers and maps take the shapes the
	// validator expects.
	raw, err := json.Marshal(doc)
	if err != nil {
		return oops.Code("CONFIG_FILE_INVALID").Wrap(err)
	}
	inst, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return oops.Code("CONFIG_FILE_INVALID").Wrap(err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(inst); err != nil {
		return oops.Code("CONFIG_SCHEMA_MISMATCH").Errorf("%s", FormatSchemaError(err))
	}
	return nil
}

func compiledSchema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		data, err := GenerateSchema()
		if err != nil {
			schemaErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			schemaErr = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource("config.schema.json", doc); err != nil {
			schemaErr = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
			return
		}
		schemaCompiled, schemaErr = c.Compile("config.schema.json")
		if schemaErr != nil {
			schemaErr = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(schemaErr)
		}
	})
	return schemaCompiled, schemaErr
}

// FormatSchemaError trims the validator's preamble.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if _, rest, ok := strings.Cut(msg, "jsonschema validation failed with "); ok {
		msg = rest
	}
	return strings.TrimSpace(msg)
}
