package persistence

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type idConverter struct {
	field int
}

func (c idConverter) Decode(t *Table, rec Record, e *model.Entity, _ *DataSize) error {
	id, err := t.idKind().Parse(rec.Get(c.field))
	if err != nil {
		return err
	}
	e.SetID(id)
	return nil
}

func (c idConverter) EncodeInsert(t *Table, e *model.Entity, fields FieldMap) error {
	if id := e.ID(); id != nil {
		fields[t.fields[c.field].Name] = id.Value()
	}
	return nil
}

func (c idConverter) EncodeUpdate(*Table, *model.Entity, FieldMap, *EntityChangedMessage) error {
	return nil
}

type stringConverter struct {
	property *model.Property
	field    int
}

func (c stringConverter) Decode(_ *Table, rec Record, e *model.Entity, ds *DataSize) error {
	raw := rec.Get(c.field)
	if raw == nil {
		return e.SetProperty(c.property, nil)
	}
	s, ok := asString(raw)
	if !ok {
		s = fmt.Sprint(raw)
	}
	ds.Increase(len(s))
	return e.SetProperty(c.property, s)
}

func (c stringConverter) EncodeInsert(t *Table, e *model.Entity, fields FieldMap) error {
	fields[t.fields[c.field].Name] = e.GetProperty(c.property)
	return nil
}

func (c stringConverter) EncodeUpdate(t *Table, e *model.Entity, fields FieldMap, msg *EntityChangedMessage) error {
	msg.AddField(c.property)
	return c.EncodeInsert(t, e, fields)
}

// simpleConverter passes scalar values through, converting driver types to
// the Go type of the declared property type.
type simpleConverter struct {
	property *model.Property
	field    int
}

func (c simpleConverter) Decode(_ *Table, rec Record, e *model.Entity, ds *DataSize) error {
	raw := rec.Get(c.field)
	if raw == nil {
		return e.SetProperty(c.property, nil)
	}
	v, ok := any(raw), true
	switch c.property.Type() {
	case model.TypeBoolean:
		v, ok = asBool(raw)
	case model.TypeInt64:
		v, ok = asInt(raw)
	case model.TypeDouble:
		v, ok = asFloat(raw)
	case model.TypeDecimal:
		if s, isString := asString(raw); isString {
			d, err := decimal.NewFromString(s)
			v, ok = d, err == nil
		} else if f, isFloat := asFloat(raw); isFloat {
			v = decimal.NewFromFloat(f)
		}
	default:
		if s, isString := asString(raw); isString {
			ds.Increase(len(s))
			v = s
		}
	}
	if !ok {
		return fmt.Errorf("cannot read %T as %s", raw, c.property.Type())
	}
	return e.SetProperty(c.property, v)
}

func (c simpleConverter) EncodeInsert(t *Table, e *model.Entity, fields FieldMap) error {
	v := e.GetProperty(c.property)
	if d, ok := v.(decimal.Decimal); ok {
		v = d.String()
	}
	fields[t.fields[c.field].Name] = v
	return nil
}

func (c simpleConverter) EncodeUpdate(t *Table, e *model.Entity, fields FieldMap, msg *EntityChangedMessage) error {
	msg.AddField(c.property)
	return c.EncodeInsert(t, e, fields)
}

// jsonConverter stores objects and arrays as JSON text.
type jsonConverter struct {
	property *model.Property
	field    int
}

func (c jsonConverter) Decode(_ *Table, rec Record, e *model.Entity, ds *DataSize) error {
	v, err := decodeJSON(rec.Get(c.field), ds)
	if err != nil {
		return err
	}
	return e.SetProperty(c.property, v)
}

func (c jsonConverter) EncodeInsert(t *Table, e *model.Entity, fields FieldMap) error {
	text, err := encodeJSON(e.GetProperty(c.property))
	if err != nil {
		return err
	}
	fields[t.fields[c.field].Name] = text
	return nil
}

func (c jsonConverter) EncodeUpdate(t *Table, e *model.Entity, fields FieldMap, msg *EntityChangedMessage) error {
	msg.AddField(c.property)
	return c.EncodeInsert(t, e, fields)
}

func decodeJSON(raw any, ds *DataSize) (any, error) {
	if raw == nil {
		return nil, nil
	}
	var data []byte
	switch tv := raw.(type) {
	case []byte:
		data = tv
	case string:
		data = []byte(tv)
	default:
		return raw, nil
	}
	ds.Increase(len(data))
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return v, nil
}

func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return string(data), nil
}

// navigationConverter maps a foreign key to an id-only reference entity.
type navigationConverter struct {
	property *model.Property
	field    int
}

func (c navigationConverter) Decode(t *Table, rec Record, e *model.Entity, _ *DataSize) error {
	raw := rec.Get(c.field)
	if raw == nil {
		return nil
	}
	id, err := t.idKind().Parse(raw)
	if err != nil {
		return err
	}
	return e.SetProperty(c.property, model.NewEntityWithID(c.property.Target(), id))
}

func (c navigationConverter) EncodeInsert(t *Table, e *model.Entity, fields FieldMap) error {
	column := t.fields[c.field].Name
	switch v := e.GetProperty(c.property).(type) {
	case nil:
		fields[column] = nil
	case *model.Entity:
		if v.ID() == nil {
			return fmt.Errorf("related %s has no id", c.property.Name())
		}
		fields[column] = v.ID().Value()
	default:
		return fmt.Errorf("unexpected value %T for %s", v, c.property.Name())
	}
	return nil
}

func (c navigationConverter) EncodeUpdate(t *Table, e *model.Entity, fields FieldMap, msg *EntityChangedMessage) error {
	msg.AddField(c.property)
	return c.EncodeInsert(t, e, fields)
}

// ResultType is the discriminator stored with polymorphic result values.
// The ordinals are persisted and must never change; new variants are
// appended.
type ResultType int16

const (
	ResultNumber      ResultType = 0
	ResultBoolean     ResultType = 1
	ResultString      ResultType = 2
	ResultObjectArray ResultType = 3
)

func (r ResultType) String() string {
	switch r {
	case ResultNumber:
		return "NUMBER"
	case ResultBoolean:
		return "BOOLEAN"
	case ResultString:
		return "STRING"
	case ResultObjectArray:
		return "OBJECT_ARRAY"
	default:
		return fmt.Sprintf("ResultType(%d)", int16(r))
	}
}

// ResultTypeOf returns the variant used to store v.
func ResultTypeOf(v any) ResultType {
	switch v.(type) {
	case bool:
		return ResultBoolean
	case string:
		return ResultString
	}
	if _, ok := model.NonFinite(v); ok {
		return ResultNumber
	}
	if _, ok := model.AsDecimal(v); ok {
		return ResultNumber
	}
	return ResultObjectArray
}

var errUnknownResultType = errors.New("unknown result type")

// resultFields is the frozen layout of the five result columns.
type resultFields struct {
	typ     int
	str     int
	number  int
	boolean int
	json    int
}

type resultConverter struct {
	property *model.Property
	fields   resultFields
}

func (c resultConverter) Decode(t *Table, rec Record, e *model.Entity, ds *DataSize) error {
	raw := rec.Get(c.fields.typ)
	if raw == nil {
		return nil
	}
	ord, ok := asInt(raw)
	if !ok {
		return fmt.Errorf("%w: %v", errUnknownResultType, raw)
	}
	switch ResultType(ord) {
	case ResultBoolean:
		v := rec.Get(c.fields.boolean)
		if b, ok := asBool(v); ok {
			return e.SetProperty(c.property, b)
		}
		return e.SetProperty(c.property, nil)
	case ResultNumber:
		s, _ := asString(rec.Get(c.fields.str))
		if d, err := decimal.NewFromString(s); err == nil {
			return e.SetProperty(c.property, d)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return e.SetProperty(c.property, f)
		}
		t.logger.Debug("Result string is not a number, using the numeric column", "table", t.name, "value", s)
		if f, ok := asFloat(rec.Get(c.fields.number)); ok {
			return e.SetProperty(c.property, f)
		}
		return e.SetProperty(c.property, nil)
	case ResultObjectArray:
		v, err := decodeJSON(rec.Get(c.fields.json), ds)
		if err != nil {
			return err
		}
		return e.SetProperty(c.property, v)
	case ResultString:
		raw := rec.Get(c.fields.str)
		if raw == nil {
			return e.SetProperty(c.property, nil)
		}
		s, _ := asString(raw)
		ds.Increase(len(s))
		return e.SetProperty(c.property, s)
	default:
		return fmt.Errorf("%w: %d", errUnknownResultType, ord)
	}
}

func (c resultConverter) EncodeInsert(t *Table, e *model.Entity, fields FieldMap) error {
	col := func(idx int) string { return t.fields[idx].Name }
	v := e.GetProperty(c.property)
	fields[col(c.fields.str)] = nil
	fields[col(c.fields.number)] = nil
	fields[col(c.fields.boolean)] = nil
	fields[col(c.fields.json)] = nil
	if v == nil {
		fields[col(c.fields.typ)] = nil
		return nil
	}
	rt := ResultTypeOf(v)
	fields[col(c.fields.typ)] = int16(rt)
	switch rt {
	case ResultNumber:
		if f, ok := model.NonFinite(v); ok {
			fields[col(c.fields.str)] = strconv.FormatFloat(f, 'g', -1, 64)
			fields[col(c.fields.number)] = f
			break
		}
		d, _ := model.AsDecimal(v)
		fields[col(c.fields.str)] = d.String()
		fields[col(c.fields.number)] = d.InexactFloat64()
	case ResultBoolean:
		fields[col(c.fields.str)] = fmt.Sprint(v)
		fields[col(c.fields.boolean)] = v
	case ResultString:
		fields[col(c.fields.str)] = v
	default:
		text, err := encodeJSON(v)
		if err != nil {
			return err
		}
		fields[col(c.fields.json)] = text
	}
	return nil
}

func (c resultConverter) EncodeUpdate(t *Table, e *model.Entity, fields FieldMap, msg *EntityChangedMessage) error {
	if err := c.EncodeInsert(t, e, fields); err != nil {
		return err
	}
	msg.AddField(c.property)
	return nil
}

// timeValueConverter stores an instant as start == end.
type timeValueConverter struct {
	property   *model.Property
	start, end int
}

func (c timeValueConverter) Decode(_ *Table, rec Record, e *model.Entity, _ *DataSize) error {
	start, ok, err := asTime(rec.Get(c.start))
	if err != nil {
		return err
	}
	if !ok {
		return e.SetProperty(c.property, nil)
	}
	end, ok, err := asTime(rec.Get(c.end))
	if err != nil {
		return err
	}
	if !ok || end.Equal(start) {
		return e.SetProperty(c.property, model.NewTimeInstant(start))
	}
	interval, err := model.NewTimeInterval(start, end)
	if err != nil {
		return err
	}
	return e.SetProperty(c.property, interval)
}

func (c timeValueConverter) EncodeInsert(t *Table, e *model.Entity, fields FieldMap) error {
	startCol, endCol := t.fields[c.start].Name, t.fields[c.end].Name
	v := e.GetProperty(c.property)
	if v == nil {
		fields[startCol], fields[endCol] = nil, nil
		return nil
	}
	tv, ok := model.AsTimeValue(v)
	if !ok {
		return fmt.Errorf("unexpected value %T for %s", v, c.property.Name())
	}
	fields[startCol], fields[endCol] = tv.Start().UTC(), tv.End().UTC()
	return nil
}

func (c timeValueConverter) EncodeUpdate(t *Table, e *model.Entity, fields FieldMap, msg *EntityChangedMessage) error {
	msg.AddField(c.property)
	return c.EncodeInsert(t, e, fields)
}

type timeInstantConverter struct {
	property *model.Property
	field    int
}

func (c timeInstantConverter) Decode(_ *Table, rec Record, e *model.Entity, _ *DataSize) error {
	v, ok, err := asTime(rec.Get(c.field))
	if err != nil {
		return err
	}
	if !ok {
		return e.SetProperty(c.property, nil)
	}
	return e.SetProperty(c.property, model.NewTimeInstant(v))
}

func (c timeInstantConverter) EncodeInsert(t *Table, e *model.Entity, fields FieldMap) error {
	col := t.fields[c.field].Name
	v := e.GetProperty(c.property)
	if v == nil {
		fields[col] = nil
		return nil
	}
	tv, ok := model.AsTimeValue(v)
	if !ok || !tv.Start().Equal(tv.End()) {
		// A column holding one instant cannot store a proper interval.
		return &model.ValueTypeError{Property: c.property, Value: v}
	}
	fields[col] = tv.Start().UTC()
	return nil
}

func (c timeInstantConverter) EncodeUpdate(t *Table, e *model.Entity, fields FieldMap, msg *EntityChangedMessage) error {
	msg.AddField(c.property)
	return c.EncodeInsert(t, e, fields)
}

type timeIntervalConverter struct {
	property   *model.Property
	start, end int
}

func (c timeIntervalConverter) Decode(_ *Table, rec Record, e *model.Entity, _ *DataSize) error {
	start, ok, err := asTime(rec.Get(c.start))
	if err != nil {
		return err
	}
	if !ok {
		return e.SetProperty(c.property, nil)
	}
	end, ok, err := asTime(rec.Get(c.end))
	if err != nil {
		return err
	}
	if !ok {
		end = start
	}
	interval, err := model.NewTimeInterval(start, end)
	if err != nil {
		return err
	}
	return e.SetProperty(c.property, interval)
}

func (c timeIntervalConverter) EncodeInsert(t *Table, e *model.Entity, fields FieldMap) error {
	startCol, endCol := t.fields[c.start].Name, t.fields[c.end].Name
	v := e.GetProperty(c.property)
	if v == nil {
		fields[startCol], fields[endCol] = nil, nil
		return nil
	}
	// Instants are stored as intervals with start == end.
	tv, ok := model.AsTimeValue(v)
	if !ok {
		return &model.ValueTypeError{Property: c.property, Value: v}
	}
	fields[startCol], fields[endCol] = tv.Start().UTC(), tv.End().UTC()
	return nil
}

func (c timeIntervalConverter) EncodeUpdate(t *Table, e *model.Entity, fields FieldMap, msg *EntityChangedMessage) error {
	msg.AddField(c.property)
	return c.EncodeInsert(t, e, fields)
}

// locationConverter stores GeoJSON as text and, when geospatial support is
// enabled, also as a database geometry used by the spatial functions.
type locationConverter struct {
	property *model.Property
	json     int
	geom     int
	dialect  Dialect
}

func (c locationConverter) Decode(_ *Table, rec Record, e *model.Entity, ds *DataSize) error {
	v, err := decodeJSON(rec.Get(c.json), ds)
	if err != nil {
		return err
	}
	return e.SetProperty(c.property, v)
}

func (c locationConverter) EncodeInsert(t *Table, e *model.Entity, fields FieldMap) error {
	text, err := encodeJSON(e.GetProperty(c.property))
	if err != nil {
		return err
	}
	fields[t.fields[c.json].Name] = text
	if c.geom >= 0 {
		geomCol := t.fields[c.geom].Name
		switch {
		case text == nil:
			fields[geomCol] = nil
		case c.dialect == DialectPostgres:
			fields[geomCol] = gorm.Expr("ST_GeomFromGeoJSON(?)", text)
		default:
			fields[geomCol] = gorm.Expr("GeomFromGeoJSON(?)", text)
		}
	}
	return nil
}

func (c locationConverter) EncodeUpdate(t *Table, e *model.Entity, fields FieldMap, msg *EntityChangedMessage) error {
	msg.AddField(c.property)
	return c.EncodeInsert(t, e, fields)
}
