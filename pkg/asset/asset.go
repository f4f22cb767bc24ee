// Package asset models the SQL-like assets of a pipeline (transformations,
// views, functions and stored procedures) and their YAML file form.
package asset

import (
	"errors"
	"fmt"

	"github.com/siqueiraa/flycs/pkg/schema"
)

type Kind string

const (
	KindTransformation  Kind = "transformation"
	KindView            Kind = "view"
	KindFunction        Kind = "function"
	KindStoredProcedure Kind = "stored_procedure"
)

// ErrUnknownKind is returned when KIND names no supported asset.
var ErrUnknownKind = errors.New("unknown asset kind")

// Asset is implemented by *Transformation, *View, *Function and
// *StoredProcedure.
type Asset interface {
	Kind() Kind
	Base() *QueryBase
	Validate() error
	ToMap() map[string]any
}

// QueryBase holds the fields every asset shares.
type QueryBase struct {
	Name        string
	Query       string
	Version     string
	Description string
	// Encrypt set to false disables automatic encryption of the query result.
	Encrypt *bool
	// Static controls whether the version is appended to the table name.
	Static              bool
	DestinationDataMart string
	DestinationTable    string
	Dependencies        []Dependency
	ParsingDependencies []Dependency
}

func (b *QueryBase) Base() *QueryBase { return b }

func (b *QueryBase) validate() error {
	if b.Name == "" {
		return schema.Missing("NAME")
	}
	if b.Query == "" {
		return schema.Missing("QUERY")
	}
	if err := schema.ValidateVersion("VERSION", b.Version); err != nil {
		return err
	}
	for i, d := range b.Dependencies {
		if err := d.Validate(); err != nil {
			return schema.Prefix(fmt.Sprintf("DEPENDS_ON[%d]", i), err)
		}
	}
	for i, d := range b.ParsingDependencies {
		if err := d.Validate(); err != nil {
			return schema.Prefix(fmt.Sprintf("PARSING_DEPENDS_ON[%d]", i), err)
		}
	}
	return nil
}

func decodeBase(m schema.Mapping) (QueryBase, error) {
	var (
		b   QueryBase
		err error
	)
	if b.Name, err = m.OptionalString("NAME"); err != nil {
		return b, err
	}
	if b.Query, err = m.String("QUERY"); err != nil {
		return b, err
	}
	if b.Version, err = m.String("VERSION"); err != nil {
		return b, err
	}
	if b.Description, err = m.OptionalString("DESCRIPTION"); err != nil {
		return b, err
	}
	if b.Encrypt, err = m.OptionalBool("ENCRYPT"); err != nil {
		return b, err
	}
	if b.Static, err = m.Bool("STATIC", true); err != nil {
		return b, err
	}
	if b.DestinationDataMart, err = m.OptionalString("DESTINATION_DATA_MART"); err != nil {
		return b, err
	}
	if b.DestinationTable, err = m.OptionalString("DESTINATION_TABLE"); err != nil {
		return b, err
	}
	if b.Dependencies, err = decodeDependencies(m, "DEPENDS_ON"); err != nil {
		return b, err
	}
	if b.ParsingDependencies, err = decodeDependencies(m, "PARSING_DEPENDS_ON"); err != nil {
		return b, err
	}
	return b, nil
}

func (b *QueryBase) toMap(kind Kind) map[string]any {
	return map[string]any{
		"NAME":                  b.Name,
		"QUERY":                 b.Query,
		"VERSION":               b.Version,
		"DESCRIPTION":           nullable(b.Description),
		"DESTINATION_TABLE":     nullable(b.DestinationTable),
		"KIND":                  string(kind),
		"ENCRYPT":               nullableBool(b.Encrypt),
		"STATIC":                b.Static,
		"DESTINATION_DATA_MART": nullable(b.DestinationDataMart),
		"DEPENDS_ON":            dependenciesToList(b.Dependencies),
		"PARSING_DEPENDS_ON":    dependenciesToList(b.ParsingDependencies),
	}
}

// Dependency pins an asset to another asset of the pipeline, identified by
// entity, stage and name.
type Dependency struct {
	Entity string
	Stage  string
	Name   string
}

func (d Dependency) Validate() error {
	switch {
	case d.Entity == "":
		return schema.Missing("ENTITY")
	case d.Stage == "":
		return schema.Missing("STAGE")
	case d.Name == "":
		return schema.Missing("NAME")
	}
	return nil
}

func (d Dependency) ToMap() map[string]any {
	return map[string]any{"ENTITY": d.Entity, "STAGE": d.Stage, "NAME": d.Name}
}

// DependencyFromMap decodes the {ENTITY, STAGE, NAME} form.
func DependencyFromMap(m schema.Mapping) (Dependency, error) {
	var (
		d   Dependency
		err error
	)
	if d.Entity, err = m.String("ENTITY"); err != nil {
		return d, err
	}
	if d.Stage, err = m.String("STAGE"); err != nil {
		return d, err
	}
	if d.Name, err = m.String("NAME"); err != nil {
		return d, err
	}
	return d, nil
}

func decodeDependencies(m schema.Mapping, key string) ([]Dependency, error) {
	raw, err := m.MappingList(key)
	if err != nil || raw == nil {
		return nil, err
	}
	out := make([]Dependency, 0, len(raw))
	for i, r := range raw {
		d, err := DependencyFromMap(r)
		if err != nil {
			return nil, schema.Prefix(fmt.Sprintf("%s[%d]", key, i), err)
		}
		out = append(out, d)
	}
	return out, nil
}

func dependenciesToList(deps []Dependency) []any {
	out := make([]any, 0, len(deps))
	for _, d := range deps {
		out = append(out, d.ToMap())
	}
	return out
}

// FromMap decodes and validates any asset. KIND selects the type; when it is
// absent defaultKind is used, which lets the directory an asset file lives in
// decide its kind.
func FromMap(m schema.Mapping, defaultKind Kind) (Asset, error) {
	kindName, err := m.OptionalString("KIND")
	if err != nil {
		return nil, err
	}
	kind := Kind(kindName)
	if kind == "" {
		kind = defaultKind
	}

	switch kind {
	case KindTransformation:
		return TransformationFromMap(m)
	case KindView:
		return ViewFromMap(m)
	case KindFunction:
		return FunctionFromMap(m)
	case KindStoredProcedure:
		return StoredProcedureFromMap(m)
	case "":
		return nil, schema.Missing("KIND")
	default:
		return nil, schema.Wrapf(ErrUnknownKind, "KIND", "unknown asset kind %q", kindName)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func nullableInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func stringsToList(ss []string) any {
	if ss == nil {
		return nil
	}
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
