package expression

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// node is the JSON form of an expression. Exactly one of the fields selects
// the node kind, e.g.
//
//	{"fn": "gt", "args": [{"path": "Datastream/name"}, {"value": 5}]}
type node struct {
	Path     *string           `json:"path,omitempty"`
	Fn       *string           `json:"fn,omitempty"`
	Args     []json.RawMessage `json:"args,omitempty"`
	Value    json.RawMessage   `json:"value,omitempty"`
	Decimal  *string           `json:"decimal,omitempty"`
	DateTime *string           `json:"datetime,omitempty"`
	Duration *string           `json:"duration,omitempty"`
	Geometry *string           `json:"geometry,omitempty"`
}

// DecodeJSON reads an expression tree from its JSON form. Plain numbers
// become integer constants when they have no fraction and double constants
// otherwise.
func DecodeJSON(data []byte) (Expression, error) {
	var n node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}
	return n.expression()
}

func (n node) expression() (Expression, error) {
	switch {
	case n.Path != nil:
		if *n.Path == "" {
			return nil, fmt.Errorf("empty path")
		}
		return NewPath(*n.Path), nil
	case n.Fn != nil:
		args := make([]Expression, len(n.Args))
		for i, raw := range n.Args {
			arg, err := DecodeJSON(raw)
			if err != nil {
				return nil, fmt.Errorf("argument %d of %s: %w", i+1, *n.Fn, err)
			}
			args[i] = arg
		}
		return Call(*n.Fn, args...), nil
	case n.Decimal != nil:
		d, err := decimal.NewFromString(*n.Decimal)
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q: %w", *n.Decimal, err)
		}
		return DecimalConstant{d}, nil
	case n.DateTime != nil:
		t, err := time.Parse(time.RFC3339Nano, *n.DateTime)
		if err != nil {
			return nil, fmt.Errorf("invalid datetime %q: %w", *n.DateTime, err)
		}
		return DateTimeConstant{t}, nil
	case n.Duration != nil:
		d, err := time.ParseDuration(*n.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", *n.Duration, err)
		}
		return DurationConstant{d}, nil
	case n.Geometry != nil:
		return GeometryConstant{WKT: *n.Geometry}, nil
	case n.Value != nil:
		return decodeValue(n.Value)
	}
	return nil, fmt.Errorf("expression node needs one of path, fn, value, decimal, datetime, duration or geometry")
}

func decodeValue(raw json.RawMessage) (Expression, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	switch tv := v.(type) {
	case json.Number:
		if i, err := tv.Int64(); err == nil {
			return IntegerConstant{i}, nil
		}
		f, err := tv.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s: %w", tv, err)
		}
		return DoubleConstant{f}, nil
	case nil, bool, string:
		return ConstantOf(tv)
	}
	return nil, fmt.Errorf("unsupported value %s", string(raw))
}
