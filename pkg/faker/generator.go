// Package faker produces sample rows for a transformation's output schema,
// used to seed fixtures for downstream queries.
package faker

import (
	"fmt"
	"math/big"
	"math/rand" // Using weak random for test data generation only
	"time"

	havro "github.com/hamba/avro/v2"
)

const (
	maxArrayItems = 3
	maxDaysBack   = 365
	maxLong       = 1_000_000
	maxInt        = 1_000
	maxAmount     = 100.0
	nullOneIn     = 4 // a nullable field is null one time in nullOneIn
)

// Generator builds random values that conform to an Avro schema. Values are
// plain Go types: time.Time for date and time logical types and decimal
// strings for decimals, as a JSON fixture would hold them.
type Generator struct {
	rng *rand.Rand
	now time.Time
}

// New returns a generator seeded with seed, anchoring dates and timestamps
// before now.
func New(seed int64, now time.Time) *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(seed)), //nolint:gosec // Using weak random for test data generation only
		now: now.UTC(),
	}
}

// Record generates one row for a record schema.
func (g *Generator) Record(s *havro.RecordSchema) (map[string]any, error) {
	row := make(map[string]any, len(s.Fields()))
	for _, f := range s.Fields() {
		v, err := g.value(f.Name(), f.Type())
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name(), err)
		}
		row[f.Name()] = v
	}
	return row, nil
}

// Records generates n rows.
func (g *Generator) Records(s *havro.RecordSchema, n int) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		row, err := g.Record(s)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (g *Generator) value(name string, s havro.Schema) (any, error) {
	switch sc := s.(type) {
	case *havro.UnionSchema:
		return g.union(name, sc)
	case *havro.RecordSchema:
		return g.Record(sc)
	case *havro.ArraySchema:
		n := g.rng.Intn(maxArrayItems + 1)
		items := make([]any, 0, n)
		for i := 0; i < n; i++ {
			v, err := g.value(name, sc.Items())
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case *havro.EnumSchema:
		symbols := sc.Symbols()
		return symbols[g.rng.Intn(len(symbols))], nil
	}

	if ls, ok := s.(havro.LogicalTypeSchema); ok {
		if l := ls.Logical(); l != nil {
			return g.logical(l)
		}
	}

	switch s.Type() {
	case havro.String:
		return fmt.Sprintf("%s_%d", name, g.rng.Intn(maxInt)), nil
	case havro.Bytes:
		b := make([]byte, 4)
		g.rng.Read(b)
		return b, nil
	case havro.Boolean:
		return g.rng.Intn(2) == 1, nil
	case havro.Int:
		return g.rng.Intn(maxInt), nil
	case havro.Long:
		return g.rng.Int63n(maxLong), nil
	case havro.Float:
		return float32(g.rng.Float64() * maxAmount), nil
	case havro.Double:
		return g.rng.Float64() * maxAmount, nil
	}
	return nil, fmt.Errorf("cannot generate %s values", s.Type())
}

func (g *Generator) union(name string, u *havro.UnionSchema) (any, error) {
	var branches []havro.Schema
	for _, t := range u.Types() {
		if t.Type() != havro.Null {
			branches = append(branches, t)
		}
	}
	if len(branches) == 0 || (u.Nullable() && g.rng.Intn(nullOneIn) == 0) {
		return nil, nil
	}
	return g.value(name, branches[g.rng.Intn(len(branches))])
}

func (g *Generator) logical(l havro.LogicalSchema) (any, error) {
	switch l.Type() {
	case havro.Date:
		return g.now.Truncate(24*time.Hour).AddDate(0, 0, -g.rng.Intn(maxDaysBack)), nil
	case havro.TimestampMillis, havro.TimestampMicros, havro.LocalTimestampMillis, havro.LocalTimestampMicros:
		return g.now.Add(-time.Duration(g.rng.Int63n(maxDaysBack*24*3600)) * time.Second), nil
	case havro.TimeMillis, havro.TimeMicros:
		return time.Duration(g.rng.Int63n(24*3600)) * time.Second, nil
	case havro.UUID:
		return fmt.Sprintf("%08x-0000-4000-8000-%012x", g.rng.Uint32(), g.rng.Int63n(1<<48)), nil
	case havro.Decimal:
		scale := 0
		if d, ok := l.(*havro.DecimalLogicalSchema); ok {
			scale = d.Scale()
		}
		r := new(big.Rat).SetFloat64(g.rng.Float64() * maxAmount)
		return r.FloatString(scale), nil
	}
	return nil, fmt.Errorf("cannot generate %s values", l.Type())
}
