package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
)

type migrationRow struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	CreatedAt int64  `db:"created_at"`
}

// First run: the migration table itself does not exist yet.
const noMigrationsTablePqError = "pq: relation \"migration\" does not exist"

//go:embed scheme
var scheme embed.FS

var sqlCommentsRegExp = regexp.MustCompile(`(?s)/\*.*?\*/`)

// executeMigrations applies every scheme file not yet recorded in the
// migration table, all inside one transaction.
func (s *storage) executeMigrations(ctx context.Context, db *sqlx.DB) error {

	var rows []migrationRow
	if err := db.SelectContext(ctx, &rows, "SELECT * FROM migration"); err != nil && err.Error() != noMigrationsTablePqError {
		return err
	}

	applied := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		applied[row.Name] = struct{}{}
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %s", err)
	}

	defer func() {
		tx.Rollback()
	}()

	executed := []string{}

	if err := fs.WalkDir(scheme, "scheme", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		_, fileName := filepath.Split(path)
		if _, ok := applied[fileName]; ok {
			return nil
		}

		fileContent, err := fs.ReadFile(scheme, path)
		if err != nil {
			return err
		}

		sql := sqlCommentsRegExp.ReplaceAllString(string(fileContent), "")

		if _, err = tx.Exec(sql); err != nil {
			return fmt.Errorf("%s: %w", fileName, err)
		}

		executed = append(executed, fileName)

		return nil

	}); err != nil {
		return fmt.Errorf("failed to apply migrations: %s", err)
	}

	now := time.Now().UnixNano()
	for _, name := range executed {
		if _, err := tx.ExecContext(ctx, db.Rebind("INSERT INTO migration (name, created_at) VALUES(?, ?);"), name, now); err != nil {
			return fmt.Errorf("failed to insert executed migration: %s", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations transaction: %s", err)
	}

	return nil
}
