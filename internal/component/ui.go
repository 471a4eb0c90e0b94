package component

import (
	"encoding/json"
	"sort"
)

// UIValue describes one editable field of a component value.
type UIValue struct {
	Name        string          `json:"name"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Type        string          `json:"type"`
	Value       json.RawMessage `json:"value,omitempty"`
}

type schemaProperty struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        any    `json:"type"`
}

type schemaDoc struct {
	Type       any                       `json:"type"`
	Properties map[string]schemaProperty `json:"properties"`
}

// UIValues splits value into the fields described by the entry's schema
// properties, ordered by field name. Components whose schema is not an
// object with properties yield a single field named "value" holding the
// whole value.
func (e Entry) UIValues(value json.RawMessage) []UIValue {
	var doc schemaDoc
	if len(e.Definition.Schema) > 0 {
		_ = json.Unmarshal(e.Definition.Schema, &doc) //nolint:errcheck // schema compiled at registration
	}

	if len(doc.Properties) == 0 {
		return []UIValue{{
			Name:  "value",
			Title: e.Definition.DisplayName,
			Type:  typeName(doc.Type),
			Value: value,
		}}
	}

	var fields map[string]json.RawMessage
	_ = json.Unmarshal(value, &fields) //nolint:errcheck // absent fields stay empty

	names := make([]string, 0, len(doc.Properties))
	for name := range doc.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]UIValue, 0, len(names))
	for _, name := range names {
		p := doc.Properties[name]
		title := p.Title
		if title == "" {
			title = name
		}
		out = append(out, UIValue{
			Name:        name,
			Title:       title,
			Description: p.Description,
			Type:        typeName(p.Type),
			Value:       fields[name],
		})
	}
	return out
}

// MergeUIValues applies edited fields onto value. A field named "value"
// on a component without object properties replaces the whole value.
func (e Entry) MergeUIValues(value json.RawMessage, edits []UIValue) (json.RawMessage, error) {
	if len(edits) == 1 && edits[0].Name == "value" {
		var doc schemaDoc
		_ = json.Unmarshal(e.Definition.Schema, &doc) //nolint:errcheck // schema compiled at registration
		if len(doc.Properties) == 0 {
			return edits[0].Value, nil
		}
	}

	fields := map[string]json.RawMessage{}
	if len(value) > 0 {
		if err := json.Unmarshal(value, &fields); err != nil {
			fields = map[string]json.RawMessage{}
		}
	}
	for _, edit := range edits {
		if edit.Value == nil {
			delete(fields, edit.Name)
			continue
		}
		fields[edit.Name] = edit.Value
	}
	return json.Marshal(fields)
}

// typeName reduces a schema "type" (string or list) to one display name.
func typeName(t any) string {
	switch v := t.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "null" {
				return s
			}
		}
	}
	return "any"
}
