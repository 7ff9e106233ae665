// Package manifest persists the final (project, target gallery) mapping and
// per-file mapping of a run in to the SQLite manifest so that a downstream
// importer can consume it without parsing report artifacts.
package manifest

import (
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/hbomb79/galleria/internal/database"
	"github.com/hbomb79/galleria/internal/report"
	"github.com/hbomb79/galleria/pkg/logger"
	"github.com/jmoiron/sqlx"
)

var log = logger.Get("Manifest")

type (
	Project struct {
		Year          string    `db:"year"`
		Name          string    `db:"name"`
		SourceDir     string    `db:"source_dir"`
		TargetGallery string    `db:"target_gallery"`
		Status        string    `db:"status"`
		RunID         string    `db:"run_id"`
		UpdatedAt     time.Time `db:"updated_at"`
	}

	File struct {
		NewPath          string    `db:"new_path"`
		NewFilename      string    `db:"new_filename"`
		OriginalFilename string    `db:"original_filename"`
		OriginalPath     string    `db:"original_path"`
		Year             string    `db:"year"`
		ProjectName      string    `db:"project_name"`
		RunID            string    `db:"run_id"`
		UpdatedAt        time.Time `db:"updated_at"`
	}

	Store struct{}
)

func NewStore() *Store { return &Store{} }

// Record upserts the run, every mapped project and every converted file from
// the finalized report. Previous rows for the same project or output path
// are replaced.
func (store *Store) Record(db database.Queryable, r *report.MigrationReport) error {
	now := time.Now().UTC()
	runID := r.RunID.String()

	if _, err := db.Exec(`
		INSERT INTO runs(id, mode, source_root, target_root, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, string(r.Mode), r.SourceRoot, r.TargetRoot, r.StartedAt, r.FinishedAt); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", runID, err)
	}

	galleries := r.GalleryMappings()
	recorded := make(map[string]struct{}, len(galleries))
	for _, p := range galleries {
		query, args, err := squirrel.Insert("projects").
			Columns("year", "name", "source_dir", "target_gallery", "status", "run_id", "updated_at").
			Values(p.Key.Year, p.Key.Name, p.SourceDir, p.TargetGallery, string(p.Status), runID, now).
			Suffix(`ON CONFLICT(year, name) DO UPDATE SET
				source_dir=excluded.source_dir,
				target_gallery=excluded.target_gallery,
				status=excluded.status,
				run_id=excluded.run_id,
				updated_at=excluded.updated_at`).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to construct project upsert: %w", err)
		}
		if _, err := db.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to upsert project %s: %w", p.Key, err)
		}

		recorded[p.Key.String()] = struct{}{}
	}

	files := 0
	for _, f := range r.FileMappings() {
		if _, ok := recorded[f.Year+" "+f.ProjectName]; !ok {
			continue
		}

		query, args, err := squirrel.Insert("files").
			Columns("new_path", "new_filename", "original_filename", "original_path", "year", "project_name", "run_id", "updated_at").
			Values(f.NewPath, f.NewFilename, f.OriginalFilename, f.OriginalPath, f.Year, f.ProjectName, runID, now).
			Suffix(`ON CONFLICT(new_path) DO UPDATE SET
				new_filename=excluded.new_filename,
				original_filename=excluded.original_filename,
				original_path=excluded.original_path,
				run_id=excluded.run_id,
				updated_at=excluded.updated_at`).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to construct file upsert: %w", err)
		}
		if _, err := db.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to upsert file %s: %w", f.NewPath, err)
		}

		files++
	}

	log.Emit(logger.SUCCESS, "Recorded %d project(s) and %d file(s) for run %s\n", len(galleries), files, runID)
	return nil
}

// ListProjects returns every project in the manifest ordered by year then name.
func (store *Store) ListProjects(db database.Queryable) ([]*Project, error) {
	query, args, err := squirrel.Select("*").From("projects").OrderBy("year", "name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list projects query: %w", err)
	}

	var results []*Project
	if err := db.Select(&results, query, args...); err != nil {
		return nil, err
	}

	return results, nil
}

// ListFiles returns every file recorded against the given project, ordered by output name.
func (store *Store) ListFiles(db database.Queryable, year string, name string) ([]*File, error) {
	query, args, err := squirrel.Select("*").
		From("files").
		Where(squirrel.Eq{"year": year, "project_name": name}).
		OrderBy("new_filename").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list files query: %w", err)
	}

	var results []*File
	if err := db.Select(&results, db.Rebind(query), args...); err != nil {
		return nil, err
	}

	return results, nil
}

// RecordTx records the report inside a single transaction.
func (store *Store) RecordTx(db *sqlx.DB, r *report.MigrationReport) error {
	return database.WrapTx(db, func(tx *sqlx.Tx) error { return store.Record(tx, r) })
}
