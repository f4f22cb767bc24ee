package asset

import "github.com/siqueiraa/flycs/pkg/schema"

// View is a query exposed as a warehouse view.
type View struct {
	QueryBase
	ForceCacheRefresh bool
}

func NewView(name, query, version string) *View {
	return &View{QueryBase: QueryBase{Name: name, Query: query, Version: version, Static: true}}
}

func (v *View) Kind() Kind { return KindView }

func (v *View) Validate() error { return v.QueryBase.validate() }

func (v *View) ToMap() map[string]any {
	m := v.QueryBase.toMap(KindView)
	m["FORCE_CACHE_REFRESH"] = v.ForceCacheRefresh
	return m
}

func ViewFromMap(m schema.Mapping) (*View, error) {
	base, err := decodeBase(m)
	if err != nil {
		return nil, err
	}
	v := &View{QueryBase: base}
	if v.ForceCacheRefresh, err = m.Bool("FORCE_CACHE_REFRESH", false); err != nil {
		return nil, err
	}
	return v, v.Validate()
}
