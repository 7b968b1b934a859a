package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Header is one response header line.
type Header struct {
	Name  string `json:"name" yaml:"name" validate:"required"`
	Value string `json:"value" yaml:"value"`
}

// Headers is an ordered header list; duplicate names are kept.
//
// Documents may also write headers as an object. Object keys are sorted so
// decoding stays deterministic, and array values expand into repeated lines:
//
//	"headers": {"Content-Type": "application/json", "Set-Cookie": ["a=1", "b=2"]}
type Headers []Header

// Get returns the first value for name, compared case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value, true
		}
	}
	return "", false
}

// UnmarshalJSON accepts either a list of {name, value} or an object.
func (h *Headers) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*h = nil
		return nil
	}
	if data[0] == '[' {
		var list []Header
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*h = list
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("headers: expected list or object: %w", err)
	}
	*h = headersFromMap(obj)
	return nil
}

// UnmarshalYAML accepts either a sequence of {name, value} or a mapping.
func (h *Headers) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []Header
		if err := value.Decode(&list); err != nil {
			return err
		}
		*h = list
		return nil
	case yaml.MappingNode:
		var obj map[string]any
		if err := value.Decode(&obj); err != nil {
			return err
		}
		*h = headersFromMap(obj)
		return nil
	default:
		return fmt.Errorf("headers: expected sequence or mapping, got node kind %d", value.Kind)
	}
}

func headersFromMap(obj map[string]any) Headers {
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(Headers, 0, len(obj))
	for _, name := range names {
		switch v := obj[name].(type) {
		case []any:
			for _, item := range v {
				out = append(out, Header{Name: name, Value: fmt.Sprint(item)})
			}
		case nil:
			out = append(out, Header{Name: name})
		default:
			out = append(out, Header{Name: name, Value: fmt.Sprint(v)})
		}
	}
	return out
}
