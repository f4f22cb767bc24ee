package asset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/siqueiraa/flycs/pkg/schema"
)

type WriteDisposition string

const (
	WriteUnspecified WriteDisposition = "UNSPECIFIED"
	WriteEmpty       WriteDisposition = "WRITE_EMPTY"
	WriteTruncate    WriteDisposition = "WRITE_TRUNCATE"
	WriteAppend      WriteDisposition = "WRITE_APPEND"
)

func (w WriteDisposition) valid() bool {
	switch w {
	case WriteUnspecified, WriteEmpty, WriteTruncate, WriteAppend:
		return true
	}
	return false
}

type SchemaUpdateOption string

const AllowFieldAddition SchemaUpdateOption = "ALLOW_FIELD_ADDITION"

// ErrMultiPartitioning is returned when a table declares both time and range
// partitioning.
var ErrMultiPartitioning = errors.New("time and range partitioning are mutually exclusive")

// TableNamePlaceholder is substituted by each entry of Transformation.Tables.
const TableNamePlaceholder = "{table_name}"

// Transformation is a query whose result is written to a table.
type Transformation struct {
	QueryBase
	HasOutput               bool
	KeepOldColumns          bool
	PersistBackup           *bool
	WriteDisposition        WriteDisposition
	TimePartitioning        map[string]any
	RangePartitioning       map[string]any
	ClusterFields           []string
	TableExpiration         *int
	PartitionExpiration     *int
	RequiredPartitionFilter bool
	SchemaUpdateOptions     []SchemaUpdateOption
	DestroyTable            bool
	Tables                  []string
	Schema                  []FieldConfig
	ForceCacheRefresh       bool
}

// NewTransformation returns a transformation with the defaults used for
// asset files.
func NewTransformation(name, query, version string) *Transformation {
	return &Transformation{
		QueryBase: QueryBase{
			Name:    name,
			Query:   query,
			Version: version,
			Static:  true,
		},
		HasOutput:           true,
		KeepOldColumns:      true,
		WriteDisposition:    WriteAppend,
		SchemaUpdateOptions: []SchemaUpdateOption{AllowFieldAddition},
	}
}

func (t *Transformation) Kind() Kind { return KindTransformation }

func (t *Transformation) Validate() error {
	if err := t.QueryBase.validate(); err != nil {
		return err
	}
	if !t.WriteDisposition.valid() {
		return schema.Invalid("WRITE_DISPOSITION", "unknown write disposition %q", t.WriteDisposition)
	}
	for _, o := range t.SchemaUpdateOptions {
		if o != AllowFieldAddition {
			return schema.Invalid("SCHEMA_UPDATE_OPTIONS", "unknown schema update option %q", o)
		}
	}
	if t.TimePartitioning != nil && t.RangePartitioning != nil {
		return schema.Wrapf(ErrMultiPartitioning, "RANGE_PARTITIONING", "%s declares both time and range partitioning", t.Name)
	}
	if t.TableExpiration != nil && *t.TableExpiration < 0 {
		return schema.Invalid("TABLE_EXPIRATION", "must not be negative")
	}
	if t.PartitionExpiration != nil && *t.PartitionExpiration < 0 {
		return schema.Invalid("PARTITION_EXPIRATION", "must not be negative")
	}
	for i, f := range t.Schema {
		if err := f.Validate(); err != nil {
			return schema.Prefix(fmt.Sprintf("SCHEMA[%d]", i), err)
		}
	}
	return nil
}

// Expand renders one transformation per entry of Tables. A transformation
// without tables expands to itself.
func (t *Transformation) Expand() []*Transformation {
	if len(t.Tables) == 0 {
		return []*Transformation{t}
	}
	out := make([]*Transformation, 0, len(t.Tables))
	for _, table := range t.Tables {
		c := *t
		c.Name = t.Name + "_" + table
		c.Query = strings.ReplaceAll(t.Query, TableNamePlaceholder, table)
		c.Tables = nil
		out = append(out, &c)
	}
	return out
}

func (t *Transformation) ToMap() map[string]any {
	m := t.QueryBase.toMap(KindTransformation)
	m["HAS_OUTPUT"] = t.HasOutput
	m["KEEP_OLD_COLUMNS"] = t.KeepOldColumns
	m["PERSIST_BACKUP"] = nullableBool(t.PersistBackup)
	m["WRITE_DISPOSITION"] = string(t.WriteDisposition)
	m["TIME_PARTITIONING"] = nullableMap(t.TimePartitioning)
	m["RANGE_PARTITIONING"] = nullableMap(t.RangePartitioning)
	m["CLUSTER_FIELDS"] = stringsToList(t.ClusterFields)
	m["TABLE_EXPIRATION"] = nullableInt(t.TableExpiration)
	m["PARTITION_EXPIRATION"] = nullableInt(t.PartitionExpiration)
	m["REQUIRED_PARTITION_FILTER"] = t.RequiredPartitionFilter
	opts := make([]any, 0, len(t.SchemaUpdateOptions))
	for _, o := range t.SchemaUpdateOptions {
		opts = append(opts, string(o))
	}
	m["SCHEMA_UPDATE_OPTIONS"] = opts
	m["DESTROY_TABLE"] = t.DestroyTable
	m["TABLES"] = stringsToList(t.Tables)
	m["SCHEMA"] = fieldsToList(t.Schema)
	m["FORCE_CACHE_REFRESH"] = t.ForceCacheRefresh
	return m
}

func TransformationFromMap(m schema.Mapping) (*Transformation, error) {
	base, err := decodeBase(m)
	if err != nil {
		return nil, err
	}
	t := &Transformation{QueryBase: base}

	if t.HasOutput, err = m.Bool("HAS_OUTPUT", true); err != nil {
		return nil, err
	}
	if t.KeepOldColumns, err = m.Bool("KEEP_OLD_COLUMNS", true); err != nil {
		return nil, err
	}
	if t.PersistBackup, err = m.OptionalBool("PERSIST_BACKUP"); err != nil {
		return nil, err
	}
	wd, err := m.OptionalString("WRITE_DISPOSITION")
	if err != nil {
		return nil, err
	}
	t.WriteDisposition = WriteDisposition(wd)
	if t.WriteDisposition == "" {
		t.WriteDisposition = WriteAppend
	}
	if t.TimePartitioning, err = optionalMap(m, "TIME_PARTITIONING"); err != nil {
		return nil, err
	}
	if t.RangePartitioning, err = optionalMap(m, "RANGE_PARTITIONING"); err != nil {
		return nil, err
	}
	if t.ClusterFields, err = m.StringList("CLUSTER_FIELDS"); err != nil {
		return nil, err
	}
	if t.TableExpiration, err = m.OptionalInt("TABLE_EXPIRATION"); err != nil {
		return nil, err
	}
	if t.PartitionExpiration, err = m.OptionalInt("PARTITION_EXPIRATION"); err != nil {
		return nil, err
	}
	if t.RequiredPartitionFilter, err = m.Bool("REQUIRED_PARTITION_FILTER", false); err != nil {
		return nil, err
	}
	opts, err := m.StringList("SCHEMA_UPDATE_OPTIONS")
	if err != nil {
		return nil, err
	}
	for _, o := range opts {
		t.SchemaUpdateOptions = append(t.SchemaUpdateOptions, SchemaUpdateOption(o))
	}
	if t.DestroyTable, err = m.Bool("DESTROY_TABLE", false); err != nil {
		return nil, err
	}
	if t.Tables, err = m.StringList("TABLES"); err != nil {
		return nil, err
	}
	if t.Schema, err = decodeFields(m, "SCHEMA"); err != nil {
		return nil, err
	}
	if t.ForceCacheRefresh, err = m.Bool("FORCE_CACHE_REFRESH", false); err != nil {
		return nil, err
	}
	return t, t.Validate()
}

func optionalMap(m schema.Mapping, key string) (map[string]any, error) {
	sub, err := m.Mapping(key)
	if err != nil || sub == nil {
		return nil, err
	}
	return map[string]any(sub), nil
}

func nullableMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
