package asset

import (
	"fmt"

	"github.com/siqueiraa/flycs/pkg/schema"
)

const DefaultLanguage = "sql"

// Argument is one parameter of a user-defined function.
type Argument struct {
	Name string
	Type string
}

func (a Argument) Validate() error {
	if a.Name == "" {
		return schema.Missing("NAME")
	}
	if a.Type == "" {
		return schema.Missing("TYPE")
	}
	return nil
}

func (a Argument) ToMap() map[string]any {
	return map[string]any{"NAME": a.Name, "TYPE": a.Type}
}

func ArgumentFromMap(m schema.Mapping) (Argument, error) {
	var (
		a   Argument
		err error
	)
	if a.Name, err = m.String("NAME"); err != nil {
		return a, err
	}
	if a.Type, err = m.String("TYPE"); err != nil {
		return a, err
	}
	return a, nil
}

// Function is a user-defined function. Query holds its body.
type Function struct {
	QueryBase
	ArgumentList []Argument
	ReturnType   string
	Language     string
}

func NewFunction(name, query, version string) *Function {
	return &Function{
		QueryBase: QueryBase{Name: name, Query: query, Version: version, Static: true},
		Language:  DefaultLanguage,
	}
}

func (f *Function) Kind() Kind { return KindFunction }

func (f *Function) Validate() error {
	if err := f.QueryBase.validate(); err != nil {
		return err
	}
	for i, a := range f.ArgumentList {
		if err := a.Validate(); err != nil {
			return schema.Prefix(fmt.Sprintf("ARGUMENT_LIST[%d]", i), err)
		}
	}
	return nil
}

func (f *Function) ToMap() map[string]any {
	m := f.QueryBase.toMap(KindFunction)
	args := make([]any, 0, len(f.ArgumentList))
	for _, a := range f.ArgumentList {
		args = append(args, a.ToMap())
	}
	m["ARGUMENT_LIST"] = args
	m["RETURN_TYPE"] = nullable(f.ReturnType)
	m["LANGUAGE"] = f.Language
	return m
}

func FunctionFromMap(m schema.Mapping) (*Function, error) {
	base, err := decodeBase(m)
	if err != nil {
		return nil, err
	}
	f := &Function{QueryBase: base}

	raw, err := m.MappingList("ARGUMENT_LIST")
	if err != nil {
		return nil, err
	}
	for i, r := range raw {
		a, err := ArgumentFromMap(r)
		if err != nil {
			return nil, schema.Prefix(fmt.Sprintf("ARGUMENT_LIST[%d]", i), err)
		}
		f.ArgumentList = append(f.ArgumentList, a)
	}
	if f.ReturnType, err = m.OptionalString("RETURN_TYPE"); err != nil {
		return nil, err
	}
	if f.Language, err = m.OptionalString("LANGUAGE"); err != nil {
		return nil, err
	}
	if f.Language == "" {
		f.Language = DefaultLanguage
	}
	return f, f.Validate()
}
