package modeldef

import (
	_ "embed"
	"fmt"
	"path"
	"strings"
	"sync"
	"unicode"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/pbaumard/FROST-Server/internal/model"
)

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
		if schemaErr != nil {
			schemaErr = fmt.Errorf("cannot compile model definition schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// Definition is one model definition document.
type Definition struct {
	Conformance []string        `json:"conformance" yaml:"conformance"`
	EntityTypes []EntityTypeDef `json:"entityTypes" yaml:"entityTypes"`
	Relations   []RelationDef   `json:"relations" yaml:"relations"`
}

// EntityTypeDef declares an entity type. With Extends set it adds navigation
// properties to a type registered elsewhere.
type EntityTypeDef struct {
	Name       string          `json:"name" yaml:"name"`
	Plural     string          `json:"plural" yaml:"plural"`
	Table      string          `json:"table" yaml:"table"`
	Extends    bool            `json:"extends" yaml:"extends"`
	Properties []PropertyDef   `json:"properties" yaml:"properties"`
	Navigation []NavigationDef `json:"navigation" yaml:"navigation"`
}

// PropertyDef declares an entity property and the columns storing it. Mapper
// and Columns are derived from Type and Name when empty.
type PropertyDef struct {
	Name     string   `json:"name" yaml:"name"`
	Type     string   `json:"type" yaml:"type"`
	Required bool     `json:"required" yaml:"required"`
	Mapper   string   `json:"mapper" yaml:"mapper"`
	Columns  []string `json:"columns" yaml:"columns"`
}

// NavigationDef declares a navigation property. Target defaults to Name.
type NavigationDef struct {
	Name     string `json:"name" yaml:"name"`
	Target   string `json:"target" yaml:"target"`
	ToMany   bool   `json:"toMany" yaml:"toMany"`
	Required bool   `json:"required" yaml:"required"`
}

// Relation types.
const (
	RelationOneToMany  = "oneToMany"
	RelationManyToMany = "manyToMany"
)

// RelationDef connects two entity types. For oneToMany, Source is the one
// side and the target table holds ForeignKey. For manyToMany, LinkTable holds
// SourceColumn and TargetColumn.
type RelationDef struct {
	Type             string `json:"type" yaml:"type"`
	Source           string `json:"source" yaml:"source"`
	Target           string `json:"target" yaml:"target"`
	SourceNavigation string `json:"sourceNavigation" yaml:"sourceNavigation"`
	TargetNavigation string `json:"targetNavigation" yaml:"targetNavigation"`
	ForeignKey       string `json:"foreignKey" yaml:"foreignKey"`
	LinkTable        string `json:"linkTable" yaml:"linkTable"`
	SourceColumn     string `json:"sourceColumn" yaml:"sourceColumn"`
	TargetColumn     string `json:"targetColumn" yaml:"targetColumn"`
}

// ValidationError lists the schema violations of a definition document.
type ValidationError struct {
	Source   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model definition %s is not valid: %s", e.Source, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return model.ErrConfiguration
}

// Parse decodes and validates a definition. The format follows the
// extension of name: .json, .yaml or .yml.
func Parse(name string, data []byte) (*Definition, error) {
	var (
		doc       any
		def       Definition
		unmarshal func([]byte, any) error
	)
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		unmarshal = json.Unmarshal
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	default:
		return nil, model.NewConfigError("parse model definition", name, "unsupported file extension, expected .json, .yaml or .yml")
	}
	if err := unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse model definition %s: %w", name, err)
	}
	if err := validate(name, doc); err != nil {
		return nil, err
	}
	if err := unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to decode model definition %s: %w", name, err)
	}
	return &def, nil
}

func validate(name string, doc any) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	result, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("cannot validate model definition %s: %w", name, err)
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{Source: name}
	for _, e := range result.Errors() {
		verr.Problems = append(verr.Problems, e.String())
	}
	return verr
}

var propertyTypes = map[string]*model.PropertyType{
	"String":            model.TypeString,
	"Boolean":           model.TypeBoolean,
	"Integer":           model.TypeInt64,
	"Double":            model.TypeDouble,
	"Decimal":           model.TypeDecimal,
	"DateTime":          model.TypeDateTime,
	"TimeInstant":       model.TypeTimeInstant,
	"TimeInterval":      model.TypeTimeInterval,
	"TimeValue":         model.TypeTimeValue,
	"Geometry":          model.TypeGeometry,
	"Object":            model.TypeObject,
	"Any":               model.TypeAny,
	"UnitOfMeasurement": model.TypeUnitOfMeasurement,
}

func defaultMapper(typ *model.PropertyType) string {
	switch typ {
	case model.TypeString:
		return "text"
	case model.TypeBoolean, model.TypeInt64, model.TypeDouble, model.TypeDecimal, model.TypeDateTime:
		return "simple"
	case model.TypeTimeInstant:
		return "timeInstant"
	case model.TypeTimeInterval:
		return "timeInterval"
	case model.TypeTimeValue:
		return "timeValue"
	case model.TypeGeometry:
		return "location"
	}
	return "json"
}

// defaultColumns derives column names from the property name.
func defaultColumns(mapper, property string) []string {
	base := toSnakeCase(property)
	switch mapper {
	case "timeInterval", "timeValue":
		return []string{base + "_START", base + "_END"}
	case "location":
		return []string{base, base + "_GEOM"}
	case "result":
		return []string{base + "_TYPE", base + "_STRING", base + "_NUMBER", base + "_BOOLEAN", base + "_JSON"}
	}
	return []string{base}
}

// columnCount returns the minimum and maximum number of columns of a mapper.
func columnCount(mapper string) (int, int) {
	switch mapper {
	case "timeInterval", "timeValue":
		return 2, 2
	case "location":
		return 1, 2
	case "result":
		return 5, 5
	}
	return 1, 1
}

// toSnakeCase converts a camel case name to upper snake case, e.g.
// phenomenonTime to PHENOMENON_TIME and HTTPServer to HTTP_SERVER.
func toSnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
