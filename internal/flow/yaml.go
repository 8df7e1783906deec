package flow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// specFile is the on-disk shape of a flow spec:
//
//	fields:
//	  balance:
//	    default: 0
//	    on:
//	      - event: DEPOSIT
//	        add: amount
//	      - event: WITHDRAW
//	        subtract: amount
//	  suspended:
//	    default: false
//	    on:
//	      - event: SUSPEND
//	        set: suspended
//
// Guard predicates are code-only; they cannot be expressed in YAML.
type specFile struct {
	Fields map[string]fieldSpec `yaml:"fields"`
}

// Default and Constant hold raw nodes so any YAML value (bool, number,
// string, mapping) round-trips; they must be value-typed because yaml.v3
// does not decode into *yaml.Node struct fields. Absence is node.IsZero().
type fieldSpec struct {
	Default yaml.Node    `yaml:"default"`
	On      []clauseSpec `yaml:"on"`
}

type clauseSpec struct {
	Event     string    `yaml:"event"`
	Set       string    `yaml:"set"`
	Constant  yaml.Node `yaml:"constant"`
	Add       string    `yaml:"add"`
	Subtract  string    `yaml:"subtract"`
	Increment *float64  `yaml:"increment"`
	Decrement *float64  `yaml:"decrement"`
}

// ParseSpec decodes a YAML flow spec into a Spec.
func ParseSpec(data []byte) (Spec, error) {
	var file specFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse flow spec: %w", err)
	}
	if len(file.Fields) == 0 {
		return nil, fmt.Errorf("parse flow spec: no fields declared")
	}

	spec := Spec{}
	for name, fs := range file.Fields {
		field := Field{}
		if !fs.Default.IsZero() {
			var value any
			if err := fs.Default.Decode(&value); err != nil {
				return nil, fmt.Errorf("field %q: decode default: %w", name, err)
			}
			field = field.Default(value)
		}
		for i, cs := range fs.On {
			if cs.Event == "" {
				return nil, fmt.Errorf("field %q: clause %d: missing event", name, i)
			}
			completed, err := completeClause(field.OnEvent(cs.Event), cs)
			if err != nil {
				return nil, fmt.Errorf("field %q: clause %d: %w", name, i, err)
			}
			field = completed
		}
		spec[name] = field
	}
	return spec, nil
}

func completeClause(p Pending, cs clauseSpec) (Field, error) {
	declared := 0
	var field Field
	if cs.Set != "" {
		declared++
		field = p.Set(cs.Set)
	}
	if !cs.Constant.IsZero() {
		declared++
		var value any
		if err := cs.Constant.Decode(&value); err != nil {
			return Field{}, fmt.Errorf("decode constant: %w", err)
		}
		field = p.Constant(value)
	}
	if cs.Add != "" {
		declared++
		field = p.Add(cs.Add)
	}
	if cs.Subtract != "" {
		declared++
		field = p.Subtract(cs.Subtract)
	}
	if cs.Increment != nil {
		declared++
		field = p.Increment(*cs.Increment)
	}
	if cs.Decrement != nil {
		declared++
		field = p.Decrement(*cs.Decrement)
	}
	if declared != 1 {
		return Field{}, fmt.Errorf("expected exactly one action, got %d", declared)
	}
	return field, nil
}
