package model

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"reflect"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"
)

// ValuesEqual compares property values. Numbers compare by value regardless of
// their Go type, time values by instant, entities and sets by Equal.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case *Entity:
		bv, ok := b.(*Entity)
		return ok && av.Equal(bv)
	case *EntitySet:
		bv, ok := b.(*EntitySet)
		return ok && av.Equal(bv)
	case TimeInstant:
		bv, ok := b.(TimeInstant)
		return ok && av.Equal(bv)
	case TimeInterval:
		bv, ok := b.(TimeInterval)
		return ok && av.Equal(bv)
	case TimeValue:
		bv, ok := b.(TimeValue)
		return ok && av.Equal(bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	if fa, ok := NonFinite(a); ok {
		fb, ok := NonFinite(b)
		return ok && (fa == fb || math.IsNaN(fa) && math.IsNaN(fb))
	}
	if da, ok := toDecimal(a); ok {
		db, ok := toDecimal(b)
		return ok && da.Equal(db)
	}
	return reflect.DeepEqual(a, b)
}

// AsDecimal converts any finite Go number to a decimal.
func AsDecimal(v any) (decimal.Decimal, bool) {
	return toDecimal(v)
}

// NonFinite returns v as float64 when it is a NaN or infinite float.
func NonFinite(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float32:
		f = float64(n)
	case float64:
		f = n
	default:
		return 0, false
	}
	return f, math.IsNaN(f) || math.IsInf(f, 0)
}

func isNumber(v any) bool {
	if _, ok := NonFinite(v); ok {
		return true
	}
	_, ok := toDecimal(v)
	return ok
}

// toDecimal converts numeric values to a decimal.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int8:
		return decimal.NewFromInt(int64(n)), true
	case int16:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return fromUint(uint64(n)), true
	case uint8:
		return fromUint(uint64(n)), true
	case uint16:
		return fromUint(uint64(n)), true
	case uint32:
		return fromUint(uint64(n)), true
	case uint64:
		return fromUint(n), true
	case float32:
		if _, ok := NonFinite(n); ok {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat32(n), true
	case float64:
		if _, ok := NonFinite(n); ok {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(n), true
	}
	return decimal.Decimal{}, false
}

func fromUint(n uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
}

func writeValueHash(h *xxhash.Digest, v any) {
	switch tv := v.(type) {
	case nil:
		_, _ = h.WriteString("<nil>")
	case *Entity:
		tv.writeHash(h)
	case *EntitySet:
		tv.writeHash(h)
	case TimeInstant, TimeInterval, TimeValue:
		_, _ = h.WriteString(fmt.Sprint(tv))
	case time.Time:
		_, _ = h.WriteString(tv.UTC().Format(time.RFC3339Nano))
	default:
		if f, ok := NonFinite(v); ok {
			_, _ = h.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
			return
		}
		if d, ok := toDecimal(v); ok {
			_, _ = h.WriteString(d.String())
			return
		}
		_, _ = fmt.Fprintf(h, "%v", v)
	}
}
