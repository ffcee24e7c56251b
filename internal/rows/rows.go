package rows

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nexiath/sovera/internal/schema"
	"github.com/nexiath/sovera/internal/tenantdb"
	"github.com/nexiath/sovera/pkg/logger"
)

// Change operations reported to the event sink.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Row is one record of a user-defined table.
type Row map[string]any

// UnknownColumnError reports values addressed to columns the table does not
// have.
type UnknownColumnError struct {
	Table   string
	Columns []string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("table %q has no columns: %s", e.Table, strings.Join(e.Columns, ", "))
}

// MissingColumnsError reports required columns the insert did not supply.
type MissingColumnsError struct {
	Table   string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns for table %q: %s", e.Table, strings.Join(e.Columns, ", "))
}

// RowNotFoundError reports a primary key value with no matching row.
type RowNotFoundError struct {
	Table string
	Key   any
}

func (e *RowNotFoundError) Error() string {
	return fmt.Sprintf("no row in table %q with key %v", e.Table, e.Key)
}

// NoPrimaryKeyError is returned for keyed operations on a table without a
// primary key.
type NoPrimaryKeyError struct {
	Table string
}

func (e *NoPrimaryKeyError) Error() string {
	return fmt.Sprintf("table %q has no primary key", e.Table)
}

// EventSink receives change notifications after successful mutations.
type EventSink interface {
	EmitChange(ctx context.Context, projectID int64, table, op string, data map[string]any) error
}

// Default pagination bounds for listing rows.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Access runs typed CRUD against user-defined tables. Every operation
// introspects the live table shape first, so schema changes never leave the
// layer acting on a stale view.
type Access struct {
	tenants *tenantdb.Registry
	catalog *schema.Engine
	events  EventSink
	logger  *logger.Logger
}

// New creates a row access layer. The sink may be nil when change fan-out is
// disabled.
func New(tenants *tenantdb.Registry, catalog *schema.Engine, events EventSink, log *logger.Logger) *Access {
	return &Access{
		tenants: tenants,
		catalog: catalog,
		events:  events,
		logger:  log,
	}
}

// insertPlan is the validated column and argument list for one insert.
type insertPlan struct {
	columns []string
	args    []any
}

// planInsert checks the values against the live table shape and builds the
// bind lists for the insert. Unknown columns are rejected, required columns
// must be present and non-nil, and autoincrement columns are dropped so the
// generated value always wins over a client-supplied one.
func planInsert(info *schema.TableInfo, values Row) (*insertPlan, error) {
	byName := make(map[string]schema.ColumnInfo, len(info.Columns))
	for _, col := range info.Columns {
		byName[col.Name] = col
	}

	var unknown []string
	for name := range values {
		if _, ok := byName[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &UnknownColumnError{Table: info.Name, Columns: unknown}
	}

	var missing []string
	for _, col := range info.Columns {
		if !col.Required {
			continue
		}
		if v, ok := values[col.Name]; !ok || v == nil {
			missing = append(missing, col.Name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingColumnsError{Table: info.Name, Columns: missing}
	}

	plan := &insertPlan{}
	for _, col := range info.Columns {
		v, ok := values[col.Name]
		if !ok || col.Autoincrement {
			continue
		}
		coerced, err := coerceValue(col.Name, col.DataType, v)
		if err != nil {
			return nil, err
		}
		plan.columns = append(plan.columns, col.Name)
		plan.args = append(plan.args, coerced)
	}
	return plan, nil
}

// Insert validates the values against the live table shape and inserts one
// row, returning the stored row with all generated values.
func (a *Access) Insert(ctx context.Context, projectID int64, dbName, table string, values Row) (Row, error) {
	info, err := a.catalog.GetTable(ctx, dbName, table)
	if err != nil {
		return nil, err
	}

	plan, err := planInsert(info, values)
	if err != nil {
		return nil, err
	}

	quoted := make([]string, len(plan.columns))
	placeholders := make([]string, len(plan.columns))
	for i, name := range plan.columns {
		quoted[i] = schema.QuoteIdentifier(name)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	var query string
	if len(plan.columns) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *",
			schema.QuoteIdentifier(info.Name))
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			schema.QuoteIdentifier(info.Name),
			strings.Join(quoted, ", "),
			strings.Join(placeholders, ", "))
	}

	pool, err := a.tenants.Get(ctx, dbName)
	if err != nil {
		return nil, err
	}

	result, err := queryOne(ctx, pool, query, plan.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", info.Name, err)
	}

	a.emit(ctx, projectID, info.Name, OpInsert, result)
	return result, nil
}

// List returns rows ordered by primary key when one exists, insertion order
// otherwise. Limit and offset are clamped to sane bounds.
func (a *Access) List(ctx context.Context, dbName, table string, limit, offset int) ([]Row, error) {
	info, err := a.catalog.GetTable(ctx, dbName, table)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	orderBy := ""
	if pk := primaryKey(info); pk != "" {
		orderBy = " ORDER BY " + schema.QuoteIdentifier(pk)
	}

	query := fmt.Sprintf("SELECT * FROM %s%s LIMIT $1 OFFSET $2",
		schema.QuoteIdentifier(info.Name), orderBy)

	pool, err := a.tenants.Get(ctx, dbName)
	if err != nil {
		return nil, err
	}

	pgRows, err := pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows of %s: %w", info.Name, err)
	}
	defer pgRows.Close()

	results := []Row{}
	for pgRows.Next() {
		row, err := scanRow(pgRows)
		if err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, pgRows.Err()
}

// Get returns the row with the given primary key value.
func (a *Access) Get(ctx context.Context, dbName, table string, key any) (Row, error) {
	info, pk, err := a.keyedTable(ctx, dbName, table)
	if err != nil {
		return nil, err
	}

	coercedKey, err := a.coerceKey(info, pk, key)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1",
		schema.QuoteIdentifier(info.Name), schema.QuoteIdentifier(pk))

	pool, err := a.tenants.Get(ctx, dbName)
	if err != nil {
		return nil, err
	}

	row, err := queryOne(ctx, pool, query, coercedKey)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &RowNotFoundError{Table: info.Name, Key: key}
		}
		return nil, fmt.Errorf("failed to get row from %s: %w", info.Name, err)
	}
	return row, nil
}

// Update changes the supplied columns of the row with the given primary key
// value and returns the updated row.
func (a *Access) Update(ctx context.Context, projectID int64, dbName, table string, key any, values Row) (Row, error) {
	info, pk, err := a.keyedTable(ctx, dbName, table)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]schema.ColumnInfo, len(info.Columns))
	for _, col := range info.Columns {
		byName[col.Name] = col
	}

	var unknown []string
	for name := range values {
		if _, ok := byName[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &UnknownColumnError{Table: info.Name, Columns: unknown}
	}

	coercedKey, err := a.coerceKey(info, pk, key)
	if err != nil {
		return nil, err
	}

	var assignments []string
	args := []any{coercedKey}
	for _, col := range info.Columns {
		v, ok := values[col.Name]
		if !ok {
			continue
		}
		// The key column itself is immutable through this path.
		if col.Name == pk {
			continue
		}
		coerced, err := coerceValue(col.Name, col.DataType, v)
		if err != nil {
			return nil, err
		}
		args = append(args, coerced)
		assignments = append(assignments,
			fmt.Sprintf("%s = $%d", schema.QuoteIdentifier(col.Name), len(args)))
	}
	if len(assignments) == 0 {
		return a.Get(ctx, dbName, table, key)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $1 RETURNING *",
		schema.QuoteIdentifier(info.Name),
		strings.Join(assignments, ", "),
		schema.QuoteIdentifier(pk))

	pool, err := a.tenants.Get(ctx, dbName)
	if err != nil {
		return nil, err
	}

	result, err := queryOne(ctx, pool, query, args...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &RowNotFoundError{Table: info.Name, Key: key}
		}
		return nil, fmt.Errorf("failed to update row in %s: %w", info.Name, err)
	}

	a.emit(ctx, projectID, info.Name, OpUpdate, result)
	return result, nil
}

// Delete removes the row with the given primary key value.
func (a *Access) Delete(ctx context.Context, projectID int64, dbName, table string, key any) error {
	info, pk, err := a.keyedTable(ctx, dbName, table)
	if err != nil {
		return err
	}

	coercedKey, err := a.coerceKey(info, pk, key)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		schema.QuoteIdentifier(info.Name), schema.QuoteIdentifier(pk))

	pool, err := a.tenants.Get(ctx, dbName)
	if err != nil {
		return err
	}

	tag, err := pool.Exec(ctx, query, coercedKey)
	if err != nil {
		return fmt.Errorf("failed to delete row from %s: %w", info.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return &RowNotFoundError{Table: info.Name, Key: key}
	}

	a.emit(ctx, projectID, info.Name, OpDelete, Row{pk: key})
	return nil
}

func (a *Access) keyedTable(ctx context.Context, dbName, table string) (*schema.TableInfo, string, error) {
	info, err := a.catalog.GetTable(ctx, dbName, table)
	if err != nil {
		return nil, "", err
	}
	pk := primaryKey(info)
	if pk == "" {
		return nil, "", &NoPrimaryKeyError{Table: info.Name}
	}
	return info, pk, nil
}

func (a *Access) coerceKey(info *schema.TableInfo, pk string, key any) (any, error) {
	for _, col := range info.Columns {
		if col.Name == pk {
			return coerceValue(col.Name, col.DataType, key)
		}
	}
	return key, nil
}

// emit reports a change to the sink. Fan-out failures never fail the
// mutation that caused them.
func (a *Access) emit(ctx context.Context, projectID int64, table, op string, data Row) {
	if a.events == nil {
		return
	}
	if err := a.events.EmitChange(ctx, projectID, table, op, data); err != nil {
		a.logger.Warnf("Failed to emit %s event for table %s: %v", op, table, err)
	}
}

func primaryKey(info *schema.TableInfo) string {
	for _, col := range info.Columns {
		if col.IsPrimaryKey {
			return col.Name
		}
	}
	return ""
}

func queryOne(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, query string, args ...any) (Row, error) {
	pgRows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer pgRows.Close()

	if !pgRows.Next() {
		if err := pgRows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	return scanRow(pgRows)
}

// scanRow materializes the current row into a map keyed by column name,
// normalizing driver types into JSON-friendly values.
func scanRow(pgRows pgx.Rows) (Row, error) {
	values, err := pgRows.Values()
	if err != nil {
		return nil, fmt.Errorf("failed to read row values: %w", err)
	}

	row := make(Row, len(values))
	for i, desc := range pgRows.FieldDescriptions() {
		row[string(desc.Name)] = normalizeValue(values[i])
	}
	return row, nil
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case [16]byte:
		// uuid columns come back as raw bytes
		return fmt.Sprintf("%x-%x-%x-%x-%x", t[0:4], t[4:6], t[6:8], t[8:10], t[10:16])
	case []byte:
		return string(t)
	default:
		return v
	}
}
