package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexiath/sovera/internal/tenantdb"
	"github.com/nexiath/sovera/pkg/logger"
)

// TableExistsError is returned when creating a table that already exists.
type TableExistsError struct {
	Table string
}

func (e *TableExistsError) Error() string {
	return fmt.Sprintf("table %q already exists", e.Table)
}

// TableNotFoundError is returned for operations on a missing table.
type TableNotFoundError struct {
	Table string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %q does not exist", e.Table)
}

// ColumnInfo is the introspected shape of one column.
type ColumnInfo struct {
	Name          string  `json:"name"`
	DataType      string  `json:"data_type"`
	Nullable      bool    `json:"nullable"`
	Default       *string `json:"default,omitempty"`
	MaxLength     *int    `json:"max_length,omitempty"`
	IsPrimaryKey  bool    `json:"is_primary_key"`
	Autoincrement bool    `json:"autoincrement"`
	Required      bool    `json:"required"`
}

// TableInfo is the introspected shape of a table.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// Engine runs DDL and introspection against tenant databases. Every lookup
// introspects live so the catalog never goes stale.
type Engine struct {
	tenants *tenantdb.Registry
	logger  *logger.Logger
}

// NewEngine creates a schema engine.
func NewEngine(tenants *tenantdb.Registry, log *logger.Logger) *Engine {
	return &Engine{tenants: tenants, logger: log}
}

// CreateTable validates the spec and creates the table in the tenant
// database. The table must not already exist.
func (e *Engine) CreateTable(ctx context.Context, dbName string, spec *TableSpec) (*TableInfo, error) {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	pool, err := e.tenants.Get(ctx, dbName)
	if err != nil {
		return nil, err
	}

	exists, err := tableExists(ctx, pool, spec.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &TableExistsError{Table: spec.Name}
	}

	if _, err := pool.Exec(ctx, BuildCreateTable(spec)); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", spec.Name, err)
	}

	// Verify the table landed before reporting success.
	info, err := e.GetTable(ctx, dbName, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("table %s was not created: %w", spec.Name, err)
	}

	e.logger.Infof("Created table %s in database %s", spec.Name, dbName)
	return info, nil
}

// TableSummary is one entry of a table listing. RowCount is nil when the
// count could not be taken.
type TableSummary struct {
	Name        string `json:"name"`
	ColumnCount int    `json:"column_count"`
	RowCount    *int64 `json:"row_count,omitempty"`
}

// ListTables returns the user-defined base tables of the tenant database.
// Platform-reserved tables are excluded. Each entry carries its column
// count and a best-effort row count; a failed count leaves the entry in
// the listing with no count rather than failing the whole call.
func (e *Engine) ListTables(ctx context.Context, dbName string) ([]TableSummary, error) {
	pool, err := e.tenants.Get(ctx, dbName)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT t.table_name, COUNT(c.column_name)
		FROM information_schema.tables t
		JOIN information_schema.columns c
			ON c.table_schema = t.table_schema AND c.table_name = t.table_name
		WHERE t.table_schema = 'public' AND t.table_type = 'BASE TABLE'
		GROUP BY t.table_name
		ORDER BY t.table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []TableSummary
	for rows.Next() {
		var summary TableSummary
		if err := rows.Scan(&summary.Name, &summary.ColumnCount); err != nil {
			return nil, fmt.Errorf("failed to scan table summary: %w", err)
		}
		if isReservedTable(summary.Name) {
			continue
		}
		tables = append(tables, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tables {
		var count int64
		err := pool.QueryRow(ctx,
			"SELECT COUNT(*) FROM "+QuoteIdentifier(tables[i].Name)).Scan(&count)
		if err != nil {
			e.logger.Debugf("Row count for table %s unavailable: %v", tables[i].Name, err)
			continue
		}
		tables[i].RowCount = &count
	}
	return tables, nil
}

// GetTable introspects one table. Required marks the columns a row insert
// must supply: non-nullable, no default and not the primary key.
func (e *Engine) GetTable(ctx context.Context, dbName, tableName string) (*TableInfo, error) {
	pool, err := e.tenants.Get(ctx, dbName)
	if err != nil {
		return nil, err
	}
	return introspectTable(ctx, pool, tableName)
}

// DropTable removes a user-defined table. Baseline tables cannot be dropped.
func (e *Engine) DropTable(ctx context.Context, dbName, tableName string) error {
	tableName = strings.ToLower(strings.TrimSpace(tableName))
	if err := validateIdentifier("table", tableName); err != nil {
		return err
	}
	if isReservedTable(tableName) {
		return &ValidationError{Field: "table", Message: fmt.Sprintf("%q is a reserved table name", tableName)}
	}

	pool, err := e.tenants.Get(ctx, dbName)
	if err != nil {
		return err
	}

	exists, err := tableExists(ctx, pool, tableName)
	if err != nil {
		return err
	}
	if !exists {
		return &TableNotFoundError{Table: tableName}
	}

	// Cascades so dependent objects (foreign keys, views) go with the table.
	if _, err := pool.Exec(ctx, "DROP TABLE "+QuoteIdentifier(tableName)+" CASCADE"); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", tableName, err)
	}

	e.logger.Infof("Dropped table %s in database %s", tableName, dbName)
	return nil
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, tableName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`, tableName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return exists, nil
}

// introspectTable reads the live column catalog for a table, joining in the
// primary key constraint so callers can tell key columns apart.
func introspectTable(ctx context.Context, pool *pgxpool.Pool, tableName string) (*TableInfo, error) {
	rows, err := pool.Query(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES',
			c.column_default,
			c.character_maximum_length,
			COALESCE(pk.is_primary, FALSE)
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT kcu.column_name, TRUE AS is_primary
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON kcu.constraint_name = tc.constraint_name
				AND kcu.table_schema = tc.table_schema
				AND kcu.table_name = tc.table_name
			WHERE tc.table_schema = 'public'
				AND tc.table_name = $1
				AND tc.constraint_type = 'PRIMARY KEY'
		) pk ON pk.column_name = c.column_name
		WHERE c.table_schema = 'public' AND c.table_name = $1
		ORDER BY c.ordinal_position`, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect table %s: %w", tableName, err)
	}
	defer rows.Close()

	info := &TableInfo{Name: tableName}
	for rows.Next() {
		var col ColumnInfo
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable,
			&col.Default, &col.MaxLength, &col.IsPrimaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		col.Autoincrement = col.Default != nil && strings.Contains(*col.Default, "nextval")
		col.Required = !col.Nullable && col.Default == nil && !col.IsPrimaryKey
		info.Columns = append(info.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(info.Columns) == 0 {
		return nil, &TableNotFoundError{Table: tableName}
	}
	return info, nil
}
