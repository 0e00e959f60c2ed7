package devices

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

const schema = `CREATE TABLE IF NOT EXISTS devices (ID INTEGER PRIMARY KEY, DEVICE TEXT NOT NULL UNIQUE);`

const modelQuery = `
	SELECT MODEL.prod, FAMILIES.fam, FAMILIES.subfam, FAMILIES.showsubfam, MODEL.model, MODEL.submodel
	FROM MODEL
	JOIN FAMILIES ON MODEL.idfam = FAMILIES.id`

// ModelRow is one MODEL row joined with its family.
type ModelRow struct {
	Prod, Fam, Subfam sql.NullString
	ShowSubfam        sql.NullInt64
	Model, Submodel   sql.NullString
}

// Name joins the present parts of a row with single spaces. The subfamily is
// included only when the family asks for it.
func (r ModelRow) Name() string {
	var parts []string
	add := func(s sql.NullString) {
		if s.Valid {
			parts = append(parts, s.String)
		}
	}
	add(r.Prod)
	add(r.Fam)
	if r.ShowSubfam.Valid && r.ShowSubfam.Int64 == 1 {
		add(r.Subfam)
	}
	add(r.Model)
	add(r.Submodel)
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Build reads the MODEL and FAMILIES tables of the source catalog and writes
// the unique, sorted device names into dstPath. It returns the number of
// names written.
func Build(ctx context.Context, srcPath, dstPath string) (int, error) {
	src, err := Open(srcPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	rows, err := src.db.QueryContext(ctx, modelQuery)
	if err != nil {
		return 0, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	unique := make(map[string]struct{})
	for rows.Next() {
		var r ModelRow
		if err := rows.Scan(&r.Prod, &r.Fam, &r.Subfam, &r.ShowSubfam, &r.Model, &r.Submodel); err != nil {
			return 0, fmt.Errorf("scan model: %w", err)
		}
		if name := r.Name(); name != "" {
			unique[name] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate models: %w", err)
	}

	names := make([]string, 0, len(unique))
	for name := range unique {
		names = append(names, name)
	}
	sort.Strings(names)

	dst, err := sql.Open("sqlite", dstPath)
	if err != nil {
		return 0, fmt.Errorf("open output database: %w", err)
	}
	defer dst.Close()

	if _, err := dst.ExecContext(ctx, schema); err != nil {
		return 0, fmt.Errorf("create devices table: %w", err)
	}

	tx, err := dst.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO devices (DEVICE) VALUES (?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, name := range names {
		if _, err := stmt.ExecContext(ctx, name); err != nil {
			return 0, fmt.Errorf("insert %q: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit devices: %w", err)
	}
	return len(names), nil
}
