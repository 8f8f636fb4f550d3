// internal/graph/entity.go
package graph

import (
	"encoding/json"
	"fmt"
)

// Entity labels.
const (
	LabelEvent   = "Event"
	LabelFork    = "Fork"
	LabelSession = "Session"
	LabelJob     = "Job"
)

// Edge types.
const (
	// EdgeChildOf points from a child event to its ancestor event
	// (sub-agent nesting via the parent tool-use id).
	EdgeChildOf = "CHILD_OF"
	// EdgeRespondsTo points from a tool-result event to the event that
	// declared the tool invocation it answers.
	EdgeRespondsTo = "RESPONDS_TO"
	// EdgeHasSession points from a fork to its session entity.
	EdgeHasSession = "HAS_SESSION"
	// EdgeHasJob points from a fork to a job entity.
	EdgeHasJob = "HAS_JOB"
)

// EntityID is assigned by the store's monotonic generator. Never zero, never
// reused.
type EntityID uint64

// Kind discriminates the scalar kinds a property value can hold.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
)

// Value is a tagged scalar property value. Exactly one field, selected by
// Kind, is meaningful.
type Value struct {
	Kind  Kind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value     { return Value{Kind: KindBool, Bool: b} }

type valueJSON struct {
	Kind  Kind            `json:"t"`
	Value json.RawMessage `json:"v"`
}

// MarshalJSON serializes the value as {"t": kind, "v": scalar}.
func (v Value) MarshalJSON() ([]byte, error) {
	var inner any
	switch v.Kind {
	case KindString:
		inner = v.Str
	case KindInt:
		inner = v.Int
	case KindFloat:
		inner = v.Float
	case KindBool:
		inner = v.Bool
	default:
		return nil, fmt.Errorf("unknown value kind %q", v.Kind)
	}
	raw, err := json.Marshal(inner)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Kind: v.Kind, Value: raw})
}

// UnmarshalJSON restores a value from its tagged form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var env valueJSON
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	v.Kind = env.Kind
	switch env.Kind {
	case KindString:
		return json.Unmarshal(env.Value, &v.Str)
	case KindInt:
		return json.Unmarshal(env.Value, &v.Int)
	case KindFloat:
		return json.Unmarshal(env.Value, &v.Float)
	case KindBool:
		return json.Unmarshal(env.Value, &v.Bool)
	}
	return fmt.Errorf("unknown value kind %q", env.Kind)
}

// Entity is a persisted graph node. Identity is immutable; properties may be
// updated in place (status transitions only).
type Entity struct {
	ID         EntityID         `json:"id"`
	Labels     []string         `json:"labels"`
	Properties map[string]Value `json:"properties"`
}

// HasLabel reports whether the entity carries the label.
func (e *Entity) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// GetString returns the string property under key, or "" if absent or not a
// string.
func (e *Entity) GetString(key string) string {
	if v, ok := e.Properties[key]; ok && v.Kind == KindString {
		return v.Str
	}
	return ""
}

// GetInt returns the int property under key, or 0.
func (e *Entity) GetInt(key string) int64 {
	if v, ok := e.Properties[key]; ok && v.Kind == KindInt {
		return v.Int
	}
	return 0
}

// GetFloat returns the float property under key, or 0.
func (e *Entity) GetFloat(key string) float64 {
	if v, ok := e.Properties[key]; ok && v.Kind == KindFloat {
		return v.Float
	}
	return 0
}

// GetBool returns the bool property under key, or false.
func (e *Entity) GetBool(key string) bool {
	if v, ok := e.Properties[key]; ok && v.Kind == KindBool {
		return v.Bool
	}
	return false
}

// Edge is a directed, typed relationship between two entities. Edges are
// append-only: never updated, never deleted.
type Edge struct {
	ID     uint64   `json:"id"`
	Source EntityID `json:"source"`
	Target EntityID `json:"target"`
	Type   string   `json:"type"`
}
