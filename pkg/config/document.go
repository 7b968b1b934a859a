package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/stubd/pkg/mapping"
)

// Format is a mapping document encoding.
type Format string

// Document formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrEmptyDocument is returned for a document without content.
var ErrEmptyDocument = errors.New("mapping document is empty")

// ParseFormat accepts "json", "yaml" and "yml" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown document format %q (want json or yaml)", s)
}

// FormatFromPath picks the format by file extension; anything that is not
// .yaml or .yml is JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// DetectFormat guesses the format of data: JSON when it starts with an
// object or array, YAML otherwise.
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// Document is the canonical wrapped form written by MarshalDocument.
type Document struct {
	Mappings []*mapping.Mapping `json:"mappings" yaml:"mappings"`
}

// ParseDocument decodes data as a single mapping, an array of mappings or
// a Document. Mappings are decoded but not validated.
func ParseDocument(data []byte, format Format) ([]*mapping.Mapping, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}
	if format == FormatYAML {
		return parseYAML(data)
	}
	return parseJSON(data)
}

func parseJSON(data []byte) ([]*mapping.Mapping, error) {
	trimmed := bytes.TrimSpace(data)
	switch trimmed[0] {
	case '[':
		var list []*mapping.Mapping
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("invalid JSON mapping array: %w", err)
		}
		return compact(list), nil
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		if _, ok := probe["mappings"]; ok {
			var doc Document
			if err := json.Unmarshal(trimmed, &doc); err != nil {
				return nil, fmt.Errorf("invalid JSON mapping document: %w", err)
			}
			return compact(doc.Mappings), nil
		}
		var m mapping.Mapping
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, fmt.Errorf("invalid JSON mapping: %w", err)
		}
		return []*mapping.Mapping{&m}, nil
	}
	return nil, errors.New("invalid JSON: expected an object or an array")
}

func parseYAML(data []byte) ([]*mapping.Mapping, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, ErrEmptyDocument
	}
	node := root.Content[0]

	switch node.Kind {
	case yaml.SequenceNode:
		var list []*mapping.Mapping
		if err := node.Decode(&list); err != nil {
			return nil, fmt.Errorf("invalid YAML mapping list: %w", err)
		}
		return compact(list), nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "mappings" {
				var doc Document
				if err := node.Decode(&doc); err != nil {
					return nil, fmt.Errorf("invalid YAML mapping document: %w", err)
				}
				return compact(doc.Mappings), nil
			}
		}
		var m mapping.Mapping
		if err := node.Decode(&m); err != nil {
			return nil, fmt.Errorf("invalid YAML mapping: %w", err)
		}
		return []*mapping.Mapping{&m}, nil
	}
	return nil, errors.New("invalid YAML: expected a mapping or a list")
}

// compact drops null entries.
func compact(list []*mapping.Mapping) []*mapping.Mapping {
	out := list[:0]
	for _, m := range list {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// MarshalDocument encodes mappings as a Document.
func MarshalDocument(mappings []*mapping.Mapping, format Format) ([]byte, error) {
	doc := Document{Mappings: mappings}
	if doc.Mappings == nil {
		doc.Mappings = []*mapping.Mapping{}
	}
	if format == FormatYAML {
		data, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal to YAML: %w", err)
		}
		return data, nil
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// MarshalMapping encodes one mapping.
func MarshalMapping(m *mapping.Mapping, format Format) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(m)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
