// Package strategy loads strategy graph definitions from YAML and assembles
// them into runnable scheduler strategies with their owned ledger and
// diagnostics instances.
package strategy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NodeConfig is one node entry in a strategy definition. Fields beyond id,
// kind and children apply only to the kinds that use them.
type NodeConfig struct {
	ID       string   `yaml:"id"`
	Kind     string   `yaml:"kind"`
	Children []string `yaml:"children"`

	PositionID          string   `yaml:"position_id"`
	Conditions          []string `yaml:"conditions"`
	AlternateConditions []string `yaml:"alternate_conditions"`

	Symbol     string `yaml:"symbol"`
	Side       string `yaml:"side"`
	Qty        string `yaml:"qty"`
	MaxEntries int    `yaml:"max_entries"`

	EntryNode string `yaml:"entry_node"`
}

// Definition is one strategy in the config file.
type Definition struct {
	ID        string       `yaml:"id"`
	Name      string       `yaml:"name"`
	Symbol    string       `yaml:"symbol"`
	Timeframe string       `yaml:"timeframe"`
	Nodes     []NodeConfig `yaml:"nodes"`
}

// File is the top-level YAML structure.
type File struct {
	Strategies []Definition `yaml:"strategies"`
}

// Load reads strategy definitions from a YAML file.
func Load(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy config: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse strategy config: %w", err)
	}
	if len(file.Strategies) == 0 {
		return nil, fmt.Errorf("strategy config %s defines no strategies", path)
	}
	return file.Strategies, nil
}
