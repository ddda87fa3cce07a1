package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ID identifies a persisted entity.
type ID interface {
	// Value returns the raw value as stored in the database
	Value() any
	// URL returns the id as it appears in resource paths, e.g. 5 or 'abc'
	URL() string
	String() string
}

// IDLong is a numeric identifier.
type IDLong int64

func (id IDLong) Value() any     { return int64(id) }
func (id IDLong) URL() string    { return strconv.FormatInt(int64(id), 10) }
func (id IDLong) String() string { return strconv.FormatInt(int64(id), 10) }

// IDString is a free text identifier.
type IDString string

func (id IDString) Value() any     { return string(id) }
func (id IDString) URL() string    { return "'" + strings.ReplaceAll(string(id), "'", "''") + "'" }
func (id IDString) String() string { return string(id) }

// IDUUID is a UUID identifier.
type IDUUID uuid.UUID

func (id IDUUID) Value() any     { return uuid.UUID(id).String() }
func (id IDUUID) URL() string    { return "'" + uuid.UUID(id).String() + "'" }
func (id IDUUID) String() string { return uuid.UUID(id).String() }

// IDKind selects the identifier representation used by all tables.
type IDKind int

const (
	IDKindLong IDKind = iota
	IDKindString
	IDKindUUID
)

// ParseIDKind parses the configuration names LONG, STRING and UUID.
func ParseIDKind(name string) (IDKind, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "LONG":
		return IDKindLong, nil
	case "STRING":
		return IDKindString, nil
	case "UUID":
		return IDKindUUID, nil
	default:
		return IDKindLong, fmt.Errorf("unknown id type '%s'", name)
	}
}

func (k IDKind) String() string {
	switch k {
	case IDKindString:
		return "STRING"
	case IDKindUUID:
		return "UUID"
	default:
		return "LONG"
	}
}

// Parse converts a raw database or request value to an ID of this kind.
func (k IDKind) Parse(raw any) (ID, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case ID:
		return v, nil
	case []byte:
		if k == IDKindUUID && len(v) == 16 {
			u, err := uuid.FromBytes(v)
			if err != nil {
				return nil, err
			}
			return IDUUID(u), nil
		}
		return k.Parse(string(v))
	}
	switch k {
	case IDKindLong:
		switch v := raw.(type) {
		case int64:
			return IDLong(v), nil
		case int:
			return IDLong(v), nil
		case int32:
			return IDLong(v), nil
		case float64:
			return IDLong(int64(v)), nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid numeric id '%s': %w", v, err)
			}
			return IDLong(n), nil
		}
	case IDKindString:
		switch v := raw.(type) {
		case string:
			return IDString(v), nil
		case fmt.Stringer:
			return IDString(v.String()), nil
		default:
			return IDString(fmt.Sprint(v)), nil
		}
	case IDKindUUID:
		switch v := raw.(type) {
		case string:
			u, err := uuid.Parse(v)
			if err != nil {
				return nil, fmt.Errorf("invalid uuid id '%s': %w", v, err)
			}
			return IDUUID(u), nil
		case uuid.UUID:
			return IDUUID(v), nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to a %s id", raw, k)
}

// Generate creates a new server side identifier. Numeric ids are generated by
// the database and cannot be created here.
func (k IDKind) Generate() (ID, error) {
	switch k {
	case IDKindUUID:
		return IDUUID(uuid.New()), nil
	case IDKindString:
		return IDString(uuid.NewString()), nil
	default:
		return nil, fmt.Errorf("ids of type %s are generated by the database", k)
	}
}
