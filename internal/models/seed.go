package models

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document used to preload subjects into a store.
//
//	subjects:
//	  - id: "42"
//	    name: Jane Doe
//	    summary: Retired nurse, loves gardening.
type SeedFile struct {
	Subjects []SubjectInput `yaml:"subjects"`
}

// ParseSeed decodes a seed document and validates every subject.
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	seen := make(map[string]bool, len(seed.Subjects))
	for i, s := range seed.Subjects {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return nil, fmt.Errorf("seed subject %d: missing id", i)
		}
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("seed subject %q: missing name", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("seed subject %q: duplicate id", id)
		}
		seen[id] = true
		seed.Subjects[i].ID = id
	}
	return &seed, nil
}

// LoadSeed reads and parses a seed file from disk.
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(data)
}
