package schema

import (
	"fmt"
	"strings"
)

// QuoteIdentifier wraps an identifier in double quotes, doubling any embedded
// quotes. Identifiers always go through this; values always go through bind
// parameters.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// columnDDL renders one column definition. An INTEGER or BIGINT primary key
// becomes an autoincrementing serial column.
func columnDDL(col ColumnSpec) string {
	var b strings.Builder
	b.WriteString(QuoteIdentifier(col.Name))
	b.WriteByte(' ')

	switch {
	case col.PrimaryKey && col.Type == TypeInteger:
		b.WriteString("SERIAL")
	case col.PrimaryKey && col.Type == TypeBigInt:
		b.WriteString("BIGSERIAL")
	case col.Type == TypeVarchar || col.Type == TypeChar:
		fmt.Fprintf(&b, "%s(%d)", col.Type, col.Length)
	default:
		b.WriteString(string(col.Type))
	}

	if col.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	} else {
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
		if col.Unique {
			b.WriteString(" UNIQUE")
		}
	}

	if col.Default != "" {
		fmt.Fprintf(&b, " DEFAULT %s", col.Default)
	}

	return b.String()
}

// BuildCreateTable renders the CREATE TABLE statement for a validated spec.
func BuildCreateTable(spec *TableSpec) string {
	cols := make([]string, len(spec.Columns))
	for i, col := range spec.Columns {
		cols[i] = "\t" + columnDDL(col)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)",
		QuoteIdentifier(spec.Name), strings.Join(cols, ",\n"))
}
