// Package warehouse loads canonical datasets into a SQL table.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"macroind/internal/logger"
	"macroind/internal/models"
)

// Table is the warehouse table holding every domain's canonical rows
const Table = "observations"

// Supported dialects, named as in WAREHOUSE_DRIVER
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

var columns = []string{
	"domain", "country_code", "country", "indicator_code", "indicator", "year", "value",
	"region", "sub_region", "income_group", "ldc", "lldc", "sids", "aggregate",
}

type dialect struct {
	driver  string
	text    string
	float   string
	boolean string
	// inlineIndex puts the domain index inside CREATE TABLE
	inlineIndex bool
	placeholder func(n int) string
}

var dialects = map[string]dialect{
	DialectSQLite: {
		driver: "sqlite", text: "TEXT", float: "REAL", boolean: "INTEGER",
		placeholder: func(int) string { return "?" },
	},
	DialectPostgres: {
		driver: "postgres", text: "TEXT", float: "DOUBLE PRECISION", boolean: "BOOLEAN",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	},
	DialectMySQL: {
		driver: "mysql", text: "VARCHAR(255)", float: "DOUBLE", boolean: "BOOLEAN",
		inlineIndex: true,
		placeholder: func(int) string { return "?" },
	},
}

// Warehouse writes canonical observations to one SQL database
type Warehouse struct {
	db      *sql.DB
	dialect dialect
	name    string
}

// Open connects to the database named by driver and dsn and creates the
// observations table when missing
func Open(ctx context.Context, driver, dsn string) (*Warehouse, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported warehouse driver %q", driver)
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s warehouse: %w", driver, err)
	}
	if driver == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	w, err := New(db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := w.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

// New wraps an open database
func New(db *sql.DB, driver string) (*Warehouse, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported warehouse driver %q", driver)
	}
	return &Warehouse{db: db, dialect: d, name: driver}, nil
}

// Close closes the database
func (w *Warehouse) Close() error {
	return w.db.Close()
}

func (w *Warehouse) createTable() string {
	d := w.dialect
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", Table)
	fmt.Fprintf(&b, "\tdomain %s NOT NULL,\n", d.text)
	fmt.Fprintf(&b, "\tcountry_code %s NOT NULL,\n", d.text)
	fmt.Fprintf(&b, "\tcountry %s NOT NULL,\n", d.text)
	fmt.Fprintf(&b, "\tindicator_code %s NOT NULL,\n", d.text)
	fmt.Fprintf(&b, "\tindicator %s NOT NULL,\n", d.text)
	b.WriteString("\tyear INTEGER NOT NULL,\n")
	fmt.Fprintf(&b, "\tvalue %s,\n", d.float)
	fmt.Fprintf(&b, "\tregion %s NOT NULL,\n", d.text)
	fmt.Fprintf(&b, "\tsub_region %s NOT NULL,\n", d.text)
	fmt.Fprintf(&b, "\tincome_group %s NOT NULL,\n", d.text)
	fmt.Fprintf(&b, "\tldc %s,\n", d.boolean)
	fmt.Fprintf(&b, "\tlldc %s,\n", d.boolean)
	fmt.Fprintf(&b, "\tsids %s,\n", d.boolean)
	if d.inlineIndex {
		fmt.Fprintf(&b, "\taggregate %s NOT NULL,\n", d.text)
		fmt.Fprintf(&b, "\tINDEX idx_%s_domain (domain)\n", Table)
	} else {
		fmt.Fprintf(&b, "\taggregate %s NOT NULL\n", d.text)
	}
	b.WriteString(")")
	return b.String()
}

// Migrate creates the observations table and its domain index
func (w *Warehouse) Migrate(ctx context.Context) error {
	if _, err := w.db.ExecContext(ctx, w.createTable()); err != nil {
		return fmt.Errorf("failed to create %s table: %w", Table, err)
	}
	if !w.dialect.inlineIndex {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_domain ON %s (domain)", Table, Table)
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create %s index: %w", Table, err)
		}
	}
	return nil
}

func (w *Warehouse) insertStatement() string {
	ph := make([]string, len(columns))
	for i := range columns {
		ph[i] = w.dialect.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", Table, strings.Join(columns, ", "), strings.Join(ph, ", "))
}

// ReplaceObservations deletes every row of domain and inserts obs in one transaction
func (w *Warehouse) ReplaceObservations(ctx context.Context, domain string, obs []models.Observation) (err error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin warehouse transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	del := fmt.Sprintf("DELETE FROM %s WHERE domain = %s", Table, w.dialect.placeholder(1))
	if _, err = tx.ExecContext(ctx, del, domain); err != nil {
		return fmt.Errorf("failed to clear %s rows: %w", domain, err)
	}

	stmt, err := tx.PrepareContext(ctx, w.insertStatement())
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err = stmt.ExecContext(ctx, rowArgs(domain, o)...); err != nil {
			return fmt.Errorf("failed to insert %s/%s/%d: %w", o.Country, o.IndicatorCode, o.Year, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit warehouse load: %w", err)
	}

	logger.Component("warehouse").Info("observations replaced", logger.Fields{
		"driver": w.name,
		"domain": domain,
		"rows":   len(obs),
	})
	return nil
}

func rowArgs(domain string, o models.Observation) []interface{} {
	value := sql.NullFloat64{}
	if o.Value != nil {
		value = sql.NullFloat64{Float64: *o.Value, Valid: true}
	}
	return []interface{}{
		domain, o.CountryCode, o.Country, o.IndicatorCode, o.Indicator, o.Year, value,
		o.Region, o.SubRegion, o.IncomeGroup,
		nullBool(o.LDC), nullBool(o.LLDC), nullBool(o.SIDS),
		string(o.Aggregate),
	}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

// Observations reads back the rows of domain
func (w *Warehouse) Observations(ctx context.Context, domain string) ([]models.Observation, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE domain = %s", strings.Join(columns[1:], ", "), Table, w.dialect.placeholder(1))
	rows, err := w.db.QueryContext(ctx, query, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s rows: %w", domain, err)
	}
	defer rows.Close()

	var out []models.Observation
	for rows.Next() {
		var (
			o               models.Observation
			value           sql.NullFloat64
			ldc, lldc, sids sql.NullBool
			aggregate       string
		)
		if err := rows.Scan(&o.CountryCode, &o.Country, &o.IndicatorCode, &o.Indicator, &o.Year, &value,
			&o.Region, &o.SubRegion, &o.IncomeGroup, &ldc, &lldc, &sids, &aggregate); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", domain, err)
		}
		if value.Valid {
			o.Value = models.Float(value.Float64)
		}
		o.LDC = boolPtr(ldc)
		o.LLDC = boolPtr(lldc)
		o.SIDS = boolPtr(sids)
		o.Aggregate = models.GroupAttribute(aggregate)
		out = append(out, o)
	}
	return out, rows.Err()
}

func boolPtr(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	return models.Bool(b.Bool)
}
