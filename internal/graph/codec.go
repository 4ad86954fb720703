package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the serialized form of LastWriteTime.
const TimeLayout = time.RFC3339

type wireEntity struct {
	Type          string            `json:"type,omitempty"`
	Name          string            `json:"name"`
	Path          string            `json:"path"`
	LastWriteTime json.RawMessage   `json:"lastWriteTime,omitempty"`
	Relations     []json.RawMessage `json:"relations"`
	Children      []wireEntity      `json:"children"`

	// Dependencies is an older name for Relations, read but never written.
	Dependencies []json.RawMessage `json:"dependencies,omitempty"`
}

// Encode serializes the tree rooted at root into the snapshot JSON format.
// Relations are written in identifier order so equal graphs encode to equal
// bytes.
func Encode(root *Entity) ([]byte, error) {
	if root == nil {
		return nil, errors.New("graph: encode nil entity")
	}
	w, err := toWire(root)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("graph: encode: %w", err)
	}
	return append(data, '\n'), nil
}

func toWire(e *Entity) (wireEntity, error) {
	ts, err := json.Marshal(e.LastWriteTime.UTC().Format(TimeLayout))
	if err != nil {
		return wireEntity{}, fmt.Errorf("graph: encode time: %w", err)
	}
	w := wireEntity{
		Type:          e.Kind.String(),
		Name:          e.Name,
		Path:          e.Path,
		LastWriteTime: ts,
		Relations:     make([]json.RawMessage, 0, len(e.deps)),
		Children:      make([]wireEntity, 0, len(e.children)),
	}
	for _, d := range e.SortedDependencies() {
		rel, err := json.Marshal(map[string]int{d.ID: d.Count})
		if err != nil {
			return wireEntity{}, fmt.Errorf("graph: encode relation %q: %w", d.ID, err)
		}
		w.Relations = append(w.Relations, rel)
	}
	for _, c := range e.children {
		cw, err := toWire(c)
		if err != nil {
			return wireEntity{}, err
		}
		w.Children = append(w.Children, cw)
	}
	return w, nil
}

// Decode parses snapshot JSON into a tree. An entity without a "type" field
// is a Leaf when it has no children and a Node otherwise.
func Decode(data []byte) (*Entity, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("graph: decode: expected a JSON object at root")
	}
	var w wireEntity
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return nil, fmt.Errorf("graph: decode: %w", err)
	}
	return fromWire(w)
}

func fromWire(w wireEntity) (*Entity, error) {
	lastWrite := parseTime(w.LastWriteTime)

	kind := KindNode
	switch strings.ToLower(w.Type) {
	case "leaf":
		kind = KindLeaf
	case "node":
	default:
		if len(w.Children) == 0 {
			kind = KindLeaf
		}
	}

	var e *Entity
	if kind == KindLeaf {
		e = NewLeaf(w.Name, w.Path, lastWrite, nil)
	} else {
		e = NewNode(w.Name, w.Path, lastWrite)
	}

	relations := w.Relations
	if len(relations) == 0 {
		relations = w.Dependencies
	}
	for _, raw := range relations {
		if err := decodeRelation(e, raw); err != nil {
			return nil, err
		}
	}

	if kind == KindNode {
		for _, cw := range w.Children {
			child, err := fromWire(cw)
			if err != nil {
				return nil, err
			}
			e.AddChild(child)
		}
	}
	return e, nil
}

// decodeRelation accepts {"id": 3}, {"id": "3"} and the bare string "id",
// which counts once.
func decodeRelation(e *Entity, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return fmt.Errorf("graph: decode relation: %w", err)
		}
		e.addDependency(id, 1)
		return nil
	}

	var pair map[string]json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return fmt.Errorf("graph: decode relation: %w", err)
	}
	for id, v := range pair {
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("graph: decode relation %q: unsupported count %s", id, v)
			}
			n, err = strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("graph: decode relation %q: %w", id, err)
			}
		}
		e.addDependency(id, n)
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"1/2/2006 3:04:05 PM",
}

// parseTime returns the zero time when the value is missing or unreadable,
// which makes the detector treat the entity as changed.
func parseTime(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}
	if raw[0] != '"' {
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}
		}
		return time.UnixMilli(ms).UTC()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
