package avro

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	havro "github.com/hamba/avro/v2"
)

const (
	secondsPerDay = 86400
	dateLayout    = "2006-01-02"
)

// Encode marshals a row held in plain Go or JSON-decoded values into Avro
// binary. Fields missing from row are encoded as null, fields not in the
// schema are dropped, and union values are wrapped so the encoder picks the
// non-null branch.
func Encode(s havro.Schema, row map[string]any) ([]byte, error) {
	v, err := conform(s, row)
	if err != nil {
		return nil, err
	}
	return havro.Marshal(s, v)
}

// conform converts v into the representation hamba/avro expects for s.
func conform(s havro.Schema, v any) (any, error) {
	switch sc := s.(type) {
	case *havro.UnionSchema:
		return conformUnion(sc, v)
	case *havro.RecordSchema:
		in, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %s: expected object, got %T", sc.Name(), v)
		}
		out := make(map[string]any, len(sc.Fields()))
		for _, f := range sc.Fields() {
			cv, err := conform(f.Type(), in[f.Name()])
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name(), err)
			}
			out[f.Name()] = cv
		}
		return out, nil
	case *havro.ArraySchema:
		if v == nil {
			return []any{}, nil
		}
		in, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", v)
		}
		out := make([]any, len(in))
		for i, item := range in {
			cv, err := conform(sc.Items(), item)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	}

	if ls, ok := s.(havro.LogicalTypeSchema); ok {
		if l := ls.Logical(); l != nil {
			return conformLogical(l, v)
		}
	}
	return conformPrimitive(s.Type(), v)
}

// conformUnion wraps v in a map keyed by the chosen branch name, which is
// how hamba/avro selects a union branch for untyped values.
func conformUnion(u *havro.UnionSchema, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	for _, branch := range u.Types() {
		if branch.Type() == havro.Null {
			continue
		}
		cv, err := conform(branch, v)
		if err != nil {
			return nil, err
		}
		return map[string]any{branchName(branch): cv}, nil
	}
	return nil, nil
}

func branchName(s havro.Schema) string {
	if n, ok := s.(havro.NamedSchema); ok {
		return n.FullName()
	}
	name := string(s.Type())
	if ls, ok := s.(havro.LogicalTypeSchema); ok {
		if l := ls.Logical(); l != nil {
			name += "." + string(l.Type())
		}
	}
	return name
}

func conformPrimitive(t havro.Type, v any) (any, error) {
	switch t {
	case havro.Int:
		n, err := toInt64(v)
		return int(n), err
	case havro.Long:
		return toInt64(v)
	case havro.Float:
		f, err := toFloat64(v)
		return float32(f), err
	case havro.Double:
		return toFloat64(v)
	case havro.Bytes:
		if s, ok := v.(string); ok {
			return []byte(s), nil
		}
	}
	return v, nil
}

func conformLogical(l havro.LogicalSchema, v any) (any, error) {
	switch l.Type() {
	case havro.Date:
		t, err := toTime(v, dateLayout)
		if err != nil {
			return nil, err
		}
		return int(t.UTC().Unix() / secondsPerDay), nil
	case havro.TimestampMicros, havro.LocalTimestampMicros:
		t, err := toTime(v, time.RFC3339Nano)
		if err != nil {
			return nil, err
		}
		return t.UnixMicro(), nil
	case havro.TimestampMillis, havro.LocalTimestampMillis:
		t, err := toTime(v, time.RFC3339Nano)
		if err != nil {
			return nil, err
		}
		return t.UnixMilli(), nil
	case havro.TimeMicros, havro.TimeMillis:
		return toTimeOfDay(v)
	case havro.Decimal:
		scale := 0
		if d, ok := l.(*havro.DecimalLogicalSchema); ok {
			scale = d.Scale()
		}
		return decimalBytes(v, scale)
	}
	return v, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

func toTime(v any, layout string) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		if parsed, err := time.Parse(layout, t); err == nil {
			return parsed, nil
		}
		return time.Parse(time.RFC3339Nano, t)
	}
	return time.Time{}, fmt.Errorf("expected time, got %T", v)
}

func toTimeOfDay(v any) (time.Duration, error) {
	switch t := v.(type) {
	case time.Duration:
		return t, nil
	case time.Time:
		t = t.UTC()
		return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond()), nil
	case string:
		parsed, err := time.Parse("15:04:05.999999", t)
		if err != nil {
			return 0, err
		}
		return toTimeOfDay(parsed)
	}
	return 0, fmt.Errorf("expected time of day, got %T", v)
}

// decimalBytes scales v and returns the unscaled value as big-endian two's
// complement.
func decimalBytes(v any, scale int) ([]byte, error) {
	r := new(big.Rat)
	switch d := v.(type) {
	case string:
		if _, ok := r.SetString(strings.TrimSpace(d)); !ok {
			return nil, fmt.Errorf("invalid decimal %q", d)
		}
	case float64:
		r.SetFloat64(d)
	case int:
		r.SetInt64(int64(d))
	case int64:
		r.SetInt64(d)
	case *big.Rat:
		r.Set(d)
	case []byte:
		return d, nil
	default:
		return nil, fmt.Errorf("expected decimal, got %T", v)
	}

	r.Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)))
	unscaled := new(big.Int).Quo(r.Num(), r.Denom())
	return twosComplement(unscaled), nil
}

func twosComplement(n *big.Int) []byte {
	if n.Sign() >= 0 {
		b := n.Bytes()
		if len(b) == 0 || b[0]&0x80 != 0 {
			b = append([]byte{0x00}, b...)
		}
		return b
	}
	size := (new(big.Int).Not(n).BitLen() + 8) / 8
	mod := new(big.Int).Lsh(big.NewInt(1), uint(size*8))
	b := new(big.Int).Add(n, mod).Bytes()
	for len(b) < size {
		b = append([]byte{0xff}, b...)
	}
	return b
}
