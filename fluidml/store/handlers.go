package store

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v2"
)

// jsonHandler implements the required "json" type token.
func jsonHandler() TypeHandler {
	return TypeHandler{
		Ext:       "json",
		NeedsPath: false,
		SaveFn: func(obj any, _ string) ([]byte, error) {
			return json.Marshal(obj)
		},
		LoadFn: func(raw []byte, _ string) (any, error) {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// pickleHandler implements the required "pickle" type token. Go has no
// direct analogue of Python's pickle, so this registers encoding/gob as
// the opaque-binary-blob equivalent: callers that save under type_
// "pickle" must gob.Register the concrete type of obj beforehand (the
// same constraint gob itself imposes on any interface value), and Load
// returns the decoded value through the same any-typed gob.Decoder path.
func pickleHandler() TypeHandler {
	return TypeHandler{
		Ext:       "pkl",
		NeedsPath: false,
		SaveFn: func(obj any, _ string) ([]byte, error) {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(&obj); err != nil {
				return nil, fmt.Errorf("store: pickle encode: %w", err)
			}
			return buf.Bytes(), nil
		},
		LoadFn: func(raw []byte, _ string) (any, error) {
			var obj any
			if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&obj); err != nil {
				return nil, fmt.Errorf("store: pickle decode: %w", err)
			}
			return obj, nil
		},
	}
}

// yamlHandler registers an additional "yaml" token on top of the two
// required tokens, for tasks that publish human-editable artifacts
// (configs, reports) more naturally expressed as YAML than JSON.
func yamlHandler() TypeHandler {
	return TypeHandler{
		Ext:       "yaml",
		NeedsPath: false,
		SaveFn: func(obj any, _ string) ([]byte, error) {
			return yaml.Marshal(obj)
		},
		LoadFn: func(raw []byte, _ string) (any, error) {
			var v any
			if err := yaml.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// writeFile writes data to path with os.WriteFile. The write is not
// atomic, and no handler in this package calls it.
func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
