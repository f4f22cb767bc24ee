package asset

import (
	"fmt"
	"strings"

	"github.com/siqueiraa/flycs/pkg/schema"
)

type ArgumentMode string

const (
	ModeIn    ArgumentMode = "IN"
	ModeOut   ArgumentMode = "OUT"
	ModeInOut ArgumentMode = "INOUT"
)

func (m ArgumentMode) valid() bool {
	return m == ModeIn || m == ModeOut || m == ModeInOut
}

// ProcedureArgument is one parameter of a stored procedure. Mode is
// mandatory.
type ProcedureArgument struct {
	Name string
	Type string
	Mode ArgumentMode
}

func (a ProcedureArgument) Validate() error {
	if err := (Argument{Name: a.Name, Type: a.Type}).Validate(); err != nil {
		return err
	}
	if a.Mode == "" {
		return schema.Missing("MODE")
	}
	if !a.Mode.valid() {
		return schema.Invalid("MODE", "mode %q of argument %s must be one of IN, OUT, INOUT", a.Mode, a.Name)
	}
	return nil
}

func (a ProcedureArgument) ToMap() map[string]any {
	return map[string]any{"NAME": a.Name, "TYPE": a.Type, "MODE": string(a.Mode)}
}

func ProcedureArgumentFromMap(m schema.Mapping) (ProcedureArgument, error) {
	arg, err := ArgumentFromMap(m)
	if err != nil {
		return ProcedureArgument{}, err
	}
	mode, err := m.OptionalString("MODE")
	if err != nil {
		return ProcedureArgument{}, err
	}
	a := ProcedureArgument{Name: arg.Name, Type: arg.Type, Mode: ArgumentMode(strings.ToUpper(mode))}
	return a, a.Validate()
}

// StoredProcedure is a procedure whose body is Query.
type StoredProcedure struct {
	QueryBase
	ArgumentList []ProcedureArgument
	ReturnType   string
	Language     string
}

func NewStoredProcedure(name, query, version string) *StoredProcedure {
	return &StoredProcedure{
		QueryBase: QueryBase{Name: name, Query: query, Version: version, Static: true},
		Language:  DefaultLanguage,
	}
}

func (p *StoredProcedure) Kind() Kind { return KindStoredProcedure }

func (p *StoredProcedure) Validate() error {
	if err := p.QueryBase.validate(); err != nil {
		return err
	}
	for i, a := range p.ArgumentList {
		if err := a.Validate(); err != nil {
			return schema.Prefix(fmt.Sprintf("ARGUMENT_LIST[%d]", i), err)
		}
	}
	return nil
}

func (p *StoredProcedure) ToMap() map[string]any {
	m := p.QueryBase.toMap(KindStoredProcedure)
	args := make([]any, 0, len(p.ArgumentList))
	for _, a := range p.ArgumentList {
		args = append(args, a.ToMap())
	}
	m["ARGUMENT_LIST"] = args
	m["RETURN_TYPE"] = nullable(p.ReturnType)
	m["LANGUAGE"] = p.Language
	return m
}

func StoredProcedureFromMap(m schema.Mapping) (*StoredProcedure, error) {
	base, err := decodeBase(m)
	if err != nil {
		return nil, err
	}
	p := &StoredProcedure{QueryBase: base}

	raw, err := m.MappingList("ARGUMENT_LIST")
	if err != nil {
		return nil, err
	}
	for i, r := range raw {
		a, err := ProcedureArgumentFromMap(r)
		if err != nil {
			return nil, schema.Prefix(fmt.Sprintf("ARGUMENT_LIST[%d]", i), err)
		}
		p.ArgumentList = append(p.ArgumentList, a)
	}
	if p.ReturnType, err = m.OptionalString("RETURN_TYPE"); err != nil {
		return nil, err
	}
	if p.Language, err = m.OptionalString("LANGUAGE"); err != nil {
		return nil, err
	}
	if p.Language == "" {
		p.Language = DefaultLanguage
	}
	return p, p.Validate()
}
