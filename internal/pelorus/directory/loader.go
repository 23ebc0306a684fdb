package directory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile is the YAML document shape of a catalog file:
//
//	vessels:
//	  - name: GCL YAMUNA
//	    identifier: "9481219"
type catalogFile struct {
	Vessels []Record `yaml:"vessels"`
}

// ParseCatalog decodes a YAML catalog document into records. Entries are
// returned in document order; validity filtering happens in New.
func ParseCatalog(data []byte) ([]Record, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog parse: %w", err)
	}
	if len(f.Vessels) == 0 {
		return nil, fmt.Errorf("catalog parse: no vessels defined")
	}
	return f.Vessels, nil
}

// LoadCatalogFile reads and parses a YAML catalog from disk.
func LoadCatalogFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog read %s: %w", path, err)
	}
	return ParseCatalog(data)
}
