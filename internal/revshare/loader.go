package revshare

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"
)

type tableFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadTable reads a YAML rule schedule of the form
//
//	rules:
//	  - name: flat-10
//	    buyer_ids: [11, 10963]
//	    kind: flat_percent
//	    share: 0.10
func LoadTable(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("LoadTable: reading: %w", err)
	}

	var f tableFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("LoadTable: parsing yaml: %w", err)
	}

	t, err := NewTable(f.Rules)
	if err != nil {
		return nil, fmt.Errorf("LoadTable: %w", err)
	}
	return t, nil
}

// LoadTableFile loads the schedule at path, or the default schedule when
// path is empty.
func LoadTableFile(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadTableFile: %w", err)
	}
	defer f.Close()
	return LoadTable(f)
}

// MarshalRules renders rules in the format LoadTable reads.
func MarshalRules(rules []Rule) ([]byte, error) {
	out, err := yaml.Marshal(tableFile{Rules: rules})
	if err != nil {
		return nil, fmt.Errorf("MarshalRules: %w", err)
	}
	return out, nil
}
