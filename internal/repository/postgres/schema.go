package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaStatements returns the DDL for the item table. Sort keys use the C
// collation so ORDER BY sk matches byte order, which audit ranges depend on.
func SchemaStatements(tables *TableNames) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			pk         TEXT NOT NULL,
			sk         TEXT COLLATE "C" NOT NULL,
			item_type  TEXT NOT NULL,
			family     TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL DEFAULT '',
			data       JSONB NOT NULL,
			PRIMARY KEY (pk, sk)
		)`, tables.Items),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_type_idx ON %s (item_type, pk, sk)`, tables.Items, tables.Items),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_family_idx ON %s (item_type, family) WHERE family <> ''`, tables.Items, tables.Items),
	}
}

// EnsureSchema creates the item table and its indexes if missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	for _, stmt := range SchemaStatements(tables) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// DropSchema removes the item table.
func DropSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, tables.Items)); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}
