package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Payload is a decoded provider webhook body. Providers nest the same field
// under different parents depending on the trigger, so lookups go through
// the helpers below instead of a fixed struct.
type Payload map[string]any

// DecodePayload parses a JSON object body.
func DecodePayload(body []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	return p, nil
}

// Object returns the nested object at path, or nil.
func (p Payload) Object(path ...string) Payload {
	var cur any = map[string]any(p)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	m, ok := cur.(map[string]any)
	if !ok {
		return nil
	}
	return m
}

// Raw returns the value at path without conversion.
func (p Payload) Raw(path ...string) any {
	if len(path) == 0 {
		return nil
	}
	parent := p
	if len(path) > 1 {
		parent = p.Object(path[:len(path)-1]...)
	}
	if parent == nil {
		return nil
	}
	return parent[path[len(path)-1]]
}

// String returns the trimmed string form of the scalar at path.
// Numbers are formatted without exponent; objects and arrays yield "".
func (p Payload) String(path ...string) string {
	return scalarString(p.Raw(path...))
}

// First returns the first non-empty string among the given keys of p.
func (p Payload) First(keys ...string) string {
	for _, k := range keys {
		if v := p.String(k); v != "" {
			return v
		}
	}
	return ""
}

// Field looks a field up on the root, then under customData (providers
// sometimes append a tab to custom field names), then location.id for the
// location.
func (p Payload) Field(name string) string {
	if v := p.String(name); v != "" {
		return v
	}
	if v := p.String("customData", name); v != "" {
		return v
	}
	if v := p.String("customData", name+"\t"); v != "" {
		return v
	}
	if name == "location_id" {
		return p.String("location", "id")
	}
	return ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
