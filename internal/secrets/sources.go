package secrets

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromEnvPrefix returns a Source exposing every environment variable that
// starts with prefix, keyed by the remainder of the variable name. With
// prefix "HIVE_SECRET_", HIVE_SECRET_LITELLM_API_KEY is served under
// LITELLM_API_KEY.
func FromEnvPrefix(prefix string) Source {
	return Source{
		Name: "env:" + prefix + "*",
		Load: func() (map[string]string, error) {
			vals := make(map[string]string)
			for _, kv := range os.Environ() {
				if !strings.HasPrefix(kv, prefix) {
					continue
				}
				key, val, ok := strings.Cut(kv[len(prefix):], "=")
				if !ok || key == "" || val == "" {
					continue
				}
				vals[key] = val
			}
			return vals, nil
		},
	}
}

// FromFile returns a Source reading a flat YAML map of key: value pairs. A
// missing file yields no values, so the file stays optional.
func FromFile(path string) Source {
	return Source{
		Name: path,
		Load: func() (map[string]string, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, nil
				}
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
			vals := make(map[string]string)
			if err := yaml.Unmarshal(data, &vals); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			return vals, nil
		},
	}
}

// WriteSecret updates one key in the YAML secrets file, creating the file
// with owner-only permissions when absent.
func WriteSecret(path, key, value string) error {
	vals := make(map[string]string)
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &vals); err != nil {
			return fmt.Errorf("parse secrets file: %w", err)
		}
	}
	vals[key] = value

	out, err := yaml.Marshal(vals)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write secrets file: %w", err)
	}
	return nil
}
