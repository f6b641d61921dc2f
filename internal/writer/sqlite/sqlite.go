// Package sqlite registers the "sqlite" writer engine: one single-file SQLite
// database per export, holding one table named after the sheet.
//
// Import it for side effects:
//
//	import _ "dogeexport/internal/writer/sqlite"
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dogeexport/internal/transformer"
	"dogeexport/internal/writer"
)

// Name is the DOGE_EXCEL_ENGINE value that selects this engine.
const Name = "sqlite"

func init() {
	writer.Register(Name, Engine{})
}

// Engine implements writer.Engine.
//
// Columns are declared without a type so SQLite keeps each value's own storage
// class. Timestamps are stored as RFC3339Nano text for a reliable round-trip.
type Engine struct{}

func (Engine) Ext() string { return ".sqlite" }

func (Engine) Write(ctx context.Context, path, sheet string, t transformer.Table) error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("sqlite: table has no columns")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}

	create, insert := buildSQL(sheet, t.Columns)
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", sheet, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns))
	for i, row := range t.Rows {
		for j := range args {
			args[j] = nil
			if j < len(row) {
				args[j] = sqlValue(row[j])
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

func buildSQL(table string, cols []string) (create, insert string) {
	var c, i strings.Builder
	c.WriteString("CREATE TABLE ")
	c.WriteString(sqlIdent(table))
	c.WriteString(" (")
	i.WriteString("INSERT INTO ")
	i.WriteString(sqlIdent(table))
	i.WriteString(" (")
	for n, col := range cols {
		if n > 0 {
			c.WriteString(", ")
			i.WriteString(", ")
		}
		c.WriteString(sqlIdent(col))
		i.WriteString(sqlIdent(col))
	}
	c.WriteString(")")
	i.WriteString(") VALUES (")
	i.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	i.WriteString(")")
	return c.String(), i.String()
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func sqlValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case bool, int64, float64, string, nil:
		return t
	default:
		return writer.FormatCell(t)
	}
}
