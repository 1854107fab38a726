package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/HsiangNianian/AMonItor/neurosdk/internal/schema"
)

// decodeStrict unmarshals data into v, rejecting unknown object keys,
// trailing data and objects that lack a field node lists as required.
func decodeStrict(data []byte, node *schema.Node, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after payload")
	}
	return checkRequired(node, data, "")
}

func checkRequired(node *schema.Node, data json.RawMessage, path string) error {
	if node == nil {
		return nil
	}
	switch node.Type {
	case schema.TypeObject:
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
			return nil
		}
		for _, name := range node.Required {
			if _, ok := fields[name]; !ok {
				return fmt.Errorf("missing required field %q", join(path, name))
			}
		}
		for name, raw := range fields {
			if err := checkRequired(node.Properties[name], raw, join(path, name)); err != nil {
				return err
			}
		}
	case schema.TypeArray:
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil
		}
		for i, raw := range items {
			if err := checkRequired(node.Items, raw, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
