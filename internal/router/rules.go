package router

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rulesFile is the on-disk shape of the delegation rule table.
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadTable reads a YAML rule table. A missing file yields an empty table:
// every task routes to the default capability.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Table{}, nil
		}
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return ParseTable(data)
}

// ParseTable decodes and compiles a YAML rule table payload.
func ParseTable(data []byte) (*Table, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return NewTable(f.Rules)
}
