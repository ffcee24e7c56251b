package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// ColumnType is a supported column type for user-defined tables. The set is
// a fixed allow-list; anything else is rejected at validation time.
type ColumnType string

const (
	TypeInteger         ColumnType = "INTEGER"
	TypeBigInt          ColumnType = "BIGINT"
	TypeSmallInt        ColumnType = "SMALLINT"
	TypeDecimal         ColumnType = "DECIMAL"
	TypeNumeric         ColumnType = "NUMERIC"
	TypeReal            ColumnType = "REAL"
	TypeDoublePrecision ColumnType = "DOUBLE PRECISION"
	TypeVarchar         ColumnType = "VARCHAR"
	TypeChar            ColumnType = "CHAR"
	TypeText            ColumnType = "TEXT"
	TypeBoolean         ColumnType = "BOOLEAN"
	TypeDate            ColumnType = "DATE"
	TypeTime            ColumnType = "TIME"
	TypeTimestamp       ColumnType = "TIMESTAMP"
	TypeTimestampTZ     ColumnType = "TIMESTAMPTZ"
	TypeJSON            ColumnType = "JSON"
	TypeJSONB           ColumnType = "JSONB"
	TypeUUID            ColumnType = "UUID"
)

var supportedTypes = map[ColumnType]struct{}{
	TypeInteger: {}, TypeBigInt: {}, TypeSmallInt: {},
	TypeDecimal: {}, TypeNumeric: {}, TypeReal: {}, TypeDoublePrecision: {},
	TypeVarchar: {}, TypeChar: {}, TypeText: {},
	TypeBoolean: {},
	TypeDate:    {}, TypeTime: {}, TypeTimestamp: {}, TypeTimestampTZ: {},
	TypeJSON:    {}, TypeJSONB: {}, TypeUUID: {},
}

// maxCharLength is the PostgreSQL limit for VARCHAR(n) and CHAR(n).
const maxCharLength = 10485760

// identifierPattern matches valid unquoted SQL identifiers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedWords are identifiers that would collide with SQL keywords when
// used as table or column names, even quoted they stay forbidden to keep
// generated queries unambiguous.
var reservedWords = map[string]struct{}{
	"select": {}, "insert": {}, "update": {}, "delete": {}, "from": {},
	"where": {}, "table": {}, "index": {}, "create": {}, "drop": {},
	"alter": {}, "and": {}, "or": {}, "not": {}, "null": {}, "primary": {},
	"key": {}, "foreign": {}, "references": {}, "constraint": {},
	"order": {}, "group": {}, "by": {}, "having": {}, "limit": {},
	"offset": {}, "join": {}, "union": {}, "user": {}, "grant": {},
}

// reservedTables are the baseline tables every tenant database carries;
// user-defined tables cannot shadow them and listings never expose them.
var reservedTables = map[string]struct{}{
	"items":            {},
	"project_metadata": {},
	"files":            {},
}

func isReservedTable(name string) bool {
	_, ok := reservedTables[name]
	return ok
}

// ColumnSpec describes one column of a user-defined table.
type ColumnSpec struct {
	Name       string     `json:"name"`
	Type       ColumnType `json:"type"`
	Length     int        `json:"length,omitempty"`
	Nullable   bool       `json:"nullable"`
	PrimaryKey bool       `json:"primary_key"`
	Unique     bool       `json:"unique"`
	Default    string     `json:"default,omitempty"`
}

// TableSpec describes a user-defined table to create.
type TableSpec struct {
	Name    string       `json:"name"`
	Columns []ColumnSpec `json:"columns"`
}

// ValidationError reports why a table spec was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default expressions end up verbatim in DDL, so only a closed set of
// shapes is accepted: numeric literals, booleans, simple quoted strings and
// a few safe functions.
var (
	defaultNumeric = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)
	defaultString  = regexp.MustCompile(`^'[^']*'$`)
)

var defaultFunctions = map[string]struct{}{
	"now()":             {},
	"current_timestamp": {},
	"current_date":      {},
	"gen_random_uuid()": {},
	"true":              {},
	"false":             {},
}

func validDefault(expr string) bool {
	expr = strings.TrimSpace(expr)
	if defaultNumeric.MatchString(expr) || defaultString.MatchString(expr) {
		return true
	}
	_, ok := defaultFunctions[strings.ToLower(expr)]
	return ok
}

func validateIdentifier(field, name string) error {
	if name == "" {
		return &ValidationError{Field: field, Message: "identifier must not be empty"}
	}
	if len(name) > 63 {
		return &ValidationError{Field: field, Message: "identifier exceeds 63 characters"}
	}
	if !identifierPattern.MatchString(name) {
		return &ValidationError{Field: field, Message: fmt.Sprintf("invalid identifier %q", name)}
	}
	if _, ok := reservedWords[strings.ToLower(name)]; ok {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%q is a reserved word", name)}
	}
	return nil
}

// Normalize folds identifiers and types to their canonical form. Identifiers
// are lowercased so lookups against information_schema stay consistent.
func (t *TableSpec) Normalize() {
	t.Name = strings.ToLower(strings.TrimSpace(t.Name))
	for i := range t.Columns {
		t.Columns[i].Name = strings.ToLower(strings.TrimSpace(t.Columns[i].Name))
		t.Columns[i].Type = ColumnType(strings.ToUpper(strings.TrimSpace(string(t.Columns[i].Type))))
	}
}

// Validate checks the table spec against the allow-list rules. It must be
// called after Normalize. A spec with no primary key column gets a synthetic
// autoincrementing id column prepended.
func (t *TableSpec) Validate() error {
	if err := validateIdentifier("table", t.Name); err != nil {
		return err
	}
	if isReservedTable(t.Name) {
		return &ValidationError{Field: "table", Message: fmt.Sprintf("%q is a reserved table name", t.Name)}
	}
	if len(t.Columns) == 0 {
		return &ValidationError{Field: "columns", Message: "at least one column is required"}
	}

	seen := make(map[string]struct{}, len(t.Columns))
	pkCount := 0
	for i := range t.Columns {
		col := &t.Columns[i]
		field := fmt.Sprintf("columns[%d]", i)

		if err := validateIdentifier(field, col.Name); err != nil {
			return err
		}
		if _, dup := seen[col.Name]; dup {
			return &ValidationError{Field: field, Message: fmt.Sprintf("duplicate column %q", col.Name)}
		}
		seen[col.Name] = struct{}{}

		if _, ok := supportedTypes[col.Type]; !ok {
			return &ValidationError{Field: field, Message: fmt.Sprintf("unsupported type %q", col.Type)}
		}

		switch col.Type {
		case TypeVarchar, TypeChar:
			if col.Length < 1 || col.Length > maxCharLength {
				return &ValidationError{Field: field,
					Message: fmt.Sprintf("length must be between 1 and %d for %s", maxCharLength, col.Type)}
			}
		default:
			if col.Length != 0 {
				return &ValidationError{Field: field, Message: fmt.Sprintf("length is not allowed for %s", col.Type)}
			}
		}

		if col.Default != "" && !validDefault(col.Default) {
			return &ValidationError{Field: field, Message: fmt.Sprintf("unsupported default expression %q", col.Default)}
		}

		if col.PrimaryKey {
			pkCount++
			if col.Nullable {
				return &ValidationError{Field: field, Message: "primary key column cannot be nullable"}
			}
		}
	}

	if pkCount > 1 {
		return &ValidationError{Field: "columns", Message: "at most one primary key column is allowed"}
	}

	if pkCount == 0 {
		if _, taken := seen["id"]; taken {
			return &ValidationError{Field: "columns",
				Message: `no primary key declared and column "id" is taken; declare a primary key explicitly`}
		}
		t.Columns = append([]ColumnSpec{{
			Name:       "id",
			Type:       TypeInteger,
			PrimaryKey: true,
		}}, t.Columns...)
	}

	return nil
}
