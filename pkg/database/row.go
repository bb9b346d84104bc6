package database

import (
	"math"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

// Row is one record keyed by column name.
type Row map[string]any

func scanRow(rows *sqlx.Rows) (Row, error) {
	m := make(map[string]any)
	if err := rows.MapScan(m); err != nil {
		return nil, err
	}
	for k, v := range m {
		m[k] = normalizeValue(v)
	}
	return Row(m), nil
}

// normalizeValue maps driver values onto int64, float64, string, bool,
// time.Time or nil. Unsigned values above math.MaxInt64 stay uint64.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}
		return x
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x)
		}
		return uint64(x)
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint32:
		return int64(x)
	case uint16:
		return int64(x)
	case uint8:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

func (r Row) Int64(col string) (int64, bool) {
	switch x := r[col].(type) {
	case int64:
		return x, true
	case float64:
		return int64(x), true
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	default:
		return 0, false
	}
}

func (r Row) Float64(col string) (float64, bool) {
	switch x := r[col].(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (r Row) String(col string) (string, bool) {
	switch x := r[col].(type) {
	case string:
		return x, true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case time.Time:
		return x.Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}

// Time also accepts the text layouts sqlite uses for CURRENT_TIMESTAMP.
func (r Row) Time(col string) (time.Time, bool) {
	switch x := r[col].(type) {
	case time.Time:
		return x, true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (r Row) IsNull(col string) bool {
	v, ok := r[col]
	return ok && v == nil
}
