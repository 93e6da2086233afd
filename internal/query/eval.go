// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package query

import (
	"cmp"
	"encoding/json"
	"strings"
	"time"

	"github.com/natours/natours/internal/schema"
)

// Match reports whether doc satisfies every condition.
func Match(doc map[string]any, conds []Condition) bool {
	for _, c := range conds {
		if !matchOne(doc, c) {
			return false
		}
	}
	return true
}

func matchOne(doc map[string]any, c Condition) bool {
	v, present := doc[c.Field]
	if !present || v == nil {
		return c.Op == OpNe
	}
	switch c.Op {
	case OpIn:
		values, _ := c.Value.([]any)
		for _, want := range values {
			if n, ok := Compare(v, want, c.Type); ok && n == 0 {
				return true
			}
		}
		return false
	case OpNe:
		n, ok := Compare(v, c.Value, c.Type)
		return !ok || n != 0
	}

	n, ok := Compare(v, c.Value, c.Type)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return n == 0
	case OpGt:
		return n > 0
	case OpGte:
		return n >= 0
	case OpLt:
		return n < 0
	case OpLte:
		return n <= 0
	default:
		return false
	}
}

// Compare orders a and b as values of type t. The second result is false
// when either value cannot be read as t.
func Compare(a, b any, t schema.Type) (int, bool) {
	switch t {
	case schema.Number, schema.Integer:
		x, ok1 := AsFloat(a)
		y, ok2 := AsFloat(b)
		return cmp.Compare(x, y), ok1 && ok2
	case schema.Time:
		x, ok1 := AsTime(a)
		y, ok2 := AsTime(b)
		return x.Compare(y), ok1 && ok2
	case schema.Bool:
		x, ok1 := a.(bool)
		y, ok2 := b.(bool)
		if !ok1 || !ok2 {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	case schema.String:
		x, ok1 := a.(string)
		y, ok2 := b.(string)
		return strings.Compare(x, y), ok1 && ok2
	default:
		return 0, false
	}
}

// AsFloat reads numeric document values.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// AsTime reads timestamp document values, which are stored as strings.
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := schema.ParseTime(t)
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}

// Less orders documents by keys with absent values last on ascending keys
// and first on descending keys.
func Less(a, b map[string]any, keys []SortKey) bool {
	for _, k := range keys {
		av, aok := a[k.Field]
		bv, bok := b[k.Field]
		aok = aok && av != nil
		bok = bok && bv != nil
		var n int
		switch {
		case !aok && !bok:
			continue
		case !aok:
			n = 1
		case !bok:
			n = -1
		default:
			n, _ = Compare(av, bv, k.Type)
		}
		if k.Desc {
			n = -n
		}
		if n != 0 {
			return n < 0
		}
	}
	return false
}
