package rows

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CoercionError reports a value that cannot be converted to its column type.
type CoercionError struct {
	Column   string
	DataType string
	Value    any
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("column %q: cannot coerce %v to %s", e.Column, e.Value, e.DataType)
}

// typeCategory buckets the introspected data_type strings into coercion
// behaviors.
type typeCategory int

const (
	categoryOther typeCategory = iota
	categoryInteger
	categoryFloat
	categoryBoolean
	categoryJSON
)

func categorize(dataType string) typeCategory {
	switch strings.ToLower(dataType) {
	case "integer", "bigint", "smallint":
		return categoryInteger
	case "numeric", "decimal", "real", "double precision":
		return categoryFloat
	case "boolean":
		return categoryBoolean
	case "json", "jsonb":
		return categoryJSON
	default:
		// Character, temporal and uuid values pass through as strings; the
		// database validates their format.
		return categoryOther
	}
}

var (
	trueTokens  = map[string]struct{}{"true": {}, "1": {}, "yes": {}, "on": {}}
	falseTokens = map[string]struct{}{"false": {}, "0": {}, "no": {}, "off": {}}
)

// coerceValue converts a decoded JSON value into the shape pgx expects for
// the column's type. nil passes through for every type.
func coerceValue(column, dataType string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch categorize(dataType) {
	case categoryInteger:
		switch v := value.(type) {
		case float64:
			if v != float64(int64(v)) {
				return nil, &CoercionError{Column: column, DataType: dataType, Value: value}
			}
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, &CoercionError{Column: column, DataType: dataType, Value: value}
			}
			return n, nil
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, &CoercionError{Column: column, DataType: dataType, Value: value}
			}
			return n, nil
		}
		return nil, &CoercionError{Column: column, DataType: dataType, Value: value}

	case categoryFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, &CoercionError{Column: column, DataType: dataType, Value: value}
			}
			return f, nil
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, &CoercionError{Column: column, DataType: dataType, Value: value}
			}
			return f, nil
		}
		return nil, &CoercionError{Column: column, DataType: dataType, Value: value}

	case categoryBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			token := strings.ToLower(strings.TrimSpace(v))
			if _, ok := trueTokens[token]; ok {
				return true, nil
			}
			if _, ok := falseTokens[token]; ok {
				return false, nil
			}
		case float64:
			if v == 1 {
				return true, nil
			}
			if v == 0 {
				return false, nil
			}
		}
		return nil, &CoercionError{Column: column, DataType: dataType, Value: value}

	case categoryJSON:
		// Strings pass through as raw JSON text; everything else is
		// re-marshalled so maps and slices land as json documents.
		if s, ok := value.(string); ok {
			return s, nil
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, &CoercionError{Column: column, DataType: dataType, Value: value}
		}
		return string(raw), nil

	default:
		switch v := value.(type) {
		case string:
			return v, nil
		case float64, bool:
			return fmt.Sprintf("%v", v), nil
		}
		return nil, &CoercionError{Column: column, DataType: dataType, Value: value}
	}
}
