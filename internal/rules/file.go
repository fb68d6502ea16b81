/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileRule lets rule files omit "enabled"; rules are enabled by default.
type fileRule struct {
	Rule    `yaml:",inline"`
	Enabled *bool `yaml:"enabled"`
}

type ruleFile struct {
	Rules []fileRule `yaml:"rules"`
}

// LoadFile reads rules from a YAML or JSON document. The document is either
// a list of rules or a mapping with a "rules" key. Every rule is validated;
// the first invalid rule aborts the load with a ConfigurationError.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates rules from YAML or JSON.
func Parse(data []byte) ([]Rule, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	var entries []fileRule
	switch root.Content[0].Kind {
	case yaml.SequenceNode:
		if err := root.Content[0].Decode(&entries); err != nil {
			return nil, fmt.Errorf("parse rules: %w", err)
		}
	case yaml.MappingNode:
		var doc ruleFile
		if err := root.Content[0].Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse rules: %w", err)
		}
		entries = doc.Rules
	default:
		return nil, fmt.Errorf("parse rules: expected a list or a mapping")
	}

	out := make([]Rule, 0, len(entries))
	for _, entry := range entries {
		rule := entry.Rule
		rule.Enabled = entry.Enabled == nil || *entry.Enabled
		normalize(&rule)
		if err := Validate(&rule); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}
