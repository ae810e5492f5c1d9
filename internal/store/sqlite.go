package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AhsanAkhlaq/skewplay/internal/model"

	_ "modernc.org/sqlite"
)

const createTables = `
CREATE TABLE IF NOT EXISTS users (
    uid             TEXT PRIMARY KEY,
    email           TEXT NOT NULL,
    display_name    TEXT NOT NULL,
    tier            TEXT NOT NULL,
    storage_used    INTEGER NOT NULL DEFAULT 0,
    experiments_run INTEGER NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS datasets (
    id           TEXT PRIMARY KEY,
    owner_id     TEXT NOT NULL,
    file_name    TEXT NOT NULL,
    size_bytes   INTEGER NOT NULL,
    storage_path TEXT NOT NULL,
    is_sample    INTEGER NOT NULL DEFAULT 0,
    analysis     TEXT,
    created_at   DATETIME NOT NULL,
    updated_at   DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS workflows (
    id         TEXT PRIMARY KEY,
    owner_id   TEXT NOT NULL,
    dataset_id TEXT,
    name       TEXT NOT NULL,
    status     TEXT NOT NULL,
    config     TEXT NOT NULL,
    artifacts  TEXT,
    results    TEXT,
    error      TEXT,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	notify NotifyFunc
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SetNotify registers the change-notification callback. Pass nil to disable.
func (s *SQLiteStore) SetNotify(fn NotifyFunc) {
	s.notify = fn
}

func (s *SQLiteStore) changed(collection, ownerID string) {
	if s.notify != nil {
		s.notify(collection, ownerID)
	}
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new user profile.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *model.UserProfile) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (uid, email, display_name, tier, storage_used, experiments_run, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.UID, u.Email, u.DisplayName, u.Tier,
		u.UsageStats.StorageUsedBytes, u.UsageStats.ExperimentsRun, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user profile by uid.
func (s *SQLiteStore) GetUser(ctx context.Context, uid string) (*model.UserProfile, error) {
	u := &model.UserProfile{}
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, email, display_name, tier, storage_used, experiments_run, created_at
		FROM users WHERE uid = ?`, uid,
	).Scan(&u.UID, &u.Email, &u.DisplayName, &u.Tier,
		&u.UsageStats.StorageUsedBytes, &u.UsageStats.ExperimentsRun, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// AddStorageUsed atomically adjusts the storage counter. The counter is
// clamped at zero so a failed commit followed by a release cannot drive it
// negative.
func (s *SQLiteStore) AddStorageUsed(ctx context.Context, uid string, delta int64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET storage_used = MAX(0, storage_used + ?) WHERE uid = ?",
		delta, uid,
	)
	if err != nil {
		return fmt.Errorf("adjust storage used: %w", err)
	}
	return checkAffected(result, ErrUserNotFound)
}

// AddExperimentsRun atomically adjusts the experiments counter.
func (s *SQLiteStore) AddExperimentsRun(ctx context.Context, uid string, delta int) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET experiments_run = experiments_run + ? WHERE uid = ?",
		delta, uid,
	)
	if err != nil {
		return fmt.Errorf("adjust experiments run: %w", err)
	}
	return checkAffected(result, ErrUserNotFound)
}

// CreateDataset inserts a new dataset record. updated_at is assigned here.
func (s *SQLiteStore) CreateDataset(ctx context.Context, d *model.Dataset) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	analysis, err := marshalNullable(d.Analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO datasets (id, owner_id, file_name, size_bytes, storage_path, is_sample, analysis, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OwnerID, d.FileName, d.SizeBytes, d.StoragePath, d.IsSample, analysis, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	s.changed(CollectionDatasets, d.OwnerID)
	return nil
}

// GetDataset retrieves a dataset by ID.
func (s *SQLiteStore) GetDataset(ctx context.Context, id string) (*model.Dataset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, file_name, size_bytes, storage_path, is_sample, analysis, created_at, updated_at
		FROM datasets WHERE id = ?`, id)
	d, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDatasetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset: %w", err)
	}
	return d, nil
}

// ListDatasets returns a user's datasets ordered by created_at DESC.
func (s *SQLiteStore) ListDatasets(ctx context.Context, ownerID string) ([]*model.Dataset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, file_name, size_bytes, storage_path, is_sample, analysis, created_at, updated_at
		FROM datasets WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*model.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		datasets = append(datasets, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}
	return datasets, nil
}

// RenameDataset updates a dataset's display file name, the only mutation
// allowed once analysis is attached.
func (s *SQLiteStore) RenameDataset(ctx context.Context, id, fileName string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE datasets SET file_name = ?, updated_at = ? WHERE id = ?",
		fileName, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("rename dataset: %w", err)
	}
	if err := checkAffected(result, ErrDatasetNotFound); err != nil {
		return err
	}
	s.notifyDatasetOwner(ctx, id)
	return nil
}

// SetDatasetAnalysis overwrites a dataset's analysis block.
func (s *SQLiteStore) SetDatasetAnalysis(ctx context.Context, id string, a *model.Analysis) error {
	analysis, err := marshalNullable(a)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		"UPDATE datasets SET analysis = ?, updated_at = ? WHERE id = ?",
		analysis, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set dataset analysis: %w", err)
	}
	if err := checkAffected(result, ErrDatasetNotFound); err != nil {
		return err
	}
	s.notifyDatasetOwner(ctx, id)
	return nil
}

// DeleteDataset removes a dataset record.
func (s *SQLiteStore) DeleteDataset(ctx context.Context, id string) error {
	var ownerID string
	err := s.db.QueryRowContext(ctx, "SELECT owner_id FROM datasets WHERE id = ?", id).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDatasetNotFound
	}
	if err != nil {
		return fmt.Errorf("find dataset owner: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM datasets WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	s.changed(CollectionDatasets, ownerID)
	return nil
}

// CreateWorkflow inserts a new workflow record. updated_at is assigned here.
func (s *SQLiteStore) CreateWorkflow(ctx context.Context, w *model.Workflow) error {
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	config, err := json.Marshal(w.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	artifacts, err := marshalNullable(w.Artifacts)
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}
	results, err := marshalNullable(w.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, owner_id, dataset_id, name, status, config, artifacts, results, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.OwnerID, nullString(w.DatasetID), w.Name, w.Status,
		string(config), artifacts, results, w.Error, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	s.changed(CollectionWorkflows, w.OwnerID)
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, dataset_id, name, status, config, artifacts, results, error, created_at, updated_at
		FROM workflows WHERE id = ?`, id)
	w, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return w, nil
}

// ListWorkflows returns a user's workflows ordered by created_at DESC.
func (s *SQLiteStore) ListWorkflows(ctx context.Context, ownerID string) ([]*model.Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, dataset_id, name, status, config, artifacts, results, error, created_at, updated_at
		FROM workflows WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*model.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return workflows, nil
}

// CountWorkflows returns the number of workflows owned by a user.
func (s *SQLiteStore) CountWorkflows(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM workflows WHERE owner_id = ?", ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count workflows: %w", err)
	}
	return n, nil
}

// UpdateWorkflow overwrites a workflow's mutable fields in one statement so
// results, artifacts and status land together.
func (s *SQLiteStore) UpdateWorkflow(ctx context.Context, w *model.Workflow) error {
	w.UpdatedAt = time.Now().UTC()

	config, err := json.Marshal(w.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	artifacts, err := marshalNullable(w.Artifacts)
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}
	results, err := marshalNullable(w.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET dataset_id = ?, name = ?, status = ?, config = ?,
			artifacts = ?, results = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		nullString(w.DatasetID), w.Name, w.Status, string(config),
		artifacts, results, w.Error, w.UpdatedAt, w.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if err := checkAffected(result, ErrWorkflowNotFound); err != nil {
		return err
	}
	s.changed(CollectionWorkflows, w.OwnerID)
	return nil
}

// UpdateWorkflowStatus updates only the status of a workflow.
func (s *SQLiteStore) UpdateWorkflowStatus(ctx context.Context, id, status string) error {
	var ownerID string
	err := s.db.QueryRowContext(ctx, "SELECT owner_id FROM workflows WHERE id = ?", id).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrWorkflowNotFound
	}
	if err != nil {
		return fmt.Errorf("find workflow owner: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE workflows SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update workflow status: %w", err)
	}
	if err := checkAffected(result, ErrWorkflowNotFound); err != nil {
		return err
	}
	s.changed(CollectionWorkflows, ownerID)
	return nil
}

// FinishWorkflowRun lands a run by updating only the outcome columns. Name,
// dataset binding and config are left untouched so concurrent edits made
// while the run was in flight are not reverted.
func (s *SQLiteStore) FinishWorkflowRun(ctx context.Context, id, status string, results *model.RunResults, artifacts *model.RunArtifacts, errMsg string) error {
	var ownerID string
	err := s.db.QueryRowContext(ctx, "SELECT owner_id FROM workflows WHERE id = ?", id).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrWorkflowNotFound
	}
	if err != nil {
		return fmt.Errorf("find workflow owner: %w", err)
	}

	resultsJSON, err := marshalNullable(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	artifactsJSON, err := marshalNullable(artifacts)
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE workflows SET status = ?, results = ?, artifacts = ?, error = ?, updated_at = ? WHERE id = ?",
		status, resultsJSON, artifactsJSON, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finish workflow run: %w", err)
	}
	if err := checkAffected(result, ErrWorkflowNotFound); err != nil {
		return err
	}
	s.changed(CollectionWorkflows, ownerID)
	return nil
}

// DeleteWorkflow removes a workflow record regardless of status.
func (s *SQLiteStore) DeleteWorkflow(ctx context.Context, id string) error {
	var ownerID string
	err := s.db.QueryRowContext(ctx, "SELECT owner_id FROM workflows WHERE id = ?", id).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrWorkflowNotFound
	}
	if err != nil {
		return fmt.Errorf("find workflow owner: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	s.changed(CollectionWorkflows, ownerID)
	return nil
}

// GetStats returns aggregate statistics for one user's workflows and datasets.
func (s *SQLiteStore) GetStats(ctx context.Context, ownerID string) (*Stats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := &Stats{WorkflowsByStatus: make(map[string]int)}

	rows, err := tx.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM workflows WHERE owner_id = ? GROUP BY status", ownerID)
	if err != nil {
		return nil, fmt.Errorf("count workflows by status: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.WorkflowsByStatus[status] = n
		stats.Workflows += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM datasets WHERE owner_id = ?",
		ownerID).Scan(&stats.Datasets, &stats.DatasetBytes)
	if err != nil {
		return nil, fmt.Errorf("count datasets: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(json_extract(results, '$.exec_time_seconds')), 0)
		FROM workflows WHERE owner_id = ? AND results IS NOT NULL`,
		ownerID).Scan(&stats.AvgExecSeconds)
	if err != nil {
		return nil, fmt.Errorf("average exec time: %w", err)
	}

	return stats, nil
}

// notifyDatasetOwner publishes a datasets change for the owner of id. Lookup
// failures are ignored; the next snapshot will catch up.
func (s *SQLiteStore) notifyDatasetOwner(ctx context.Context, id string) {
	if s.notify == nil {
		return
	}
	var ownerID string
	if err := s.db.QueryRowContext(ctx, "SELECT owner_id FROM datasets WHERE id = ?", id).Scan(&ownerID); err != nil {
		return
	}
	s.changed(CollectionDatasets, ownerID)
}

// scanner abstracts *sql.Row and *sql.Rows for the shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(row scanner) (*model.Dataset, error) {
	d := &model.Dataset{}
	var analysis sql.NullString
	if err := row.Scan(
		&d.ID, &d.OwnerID, &d.FileName, &d.SizeBytes, &d.StoragePath,
		&d.IsSample, &analysis, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if analysis.Valid && analysis.String != "" {
		d.Analysis = &model.Analysis{}
		if err := json.Unmarshal([]byte(analysis.String), d.Analysis); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
	}
	return d, nil
}

func scanWorkflow(row scanner) (*model.Workflow, error) {
	w := &model.Workflow{}
	var datasetID, artifacts, results, errMsg sql.NullString
	var config string
	if err := row.Scan(
		&w.ID, &w.OwnerID, &datasetID, &w.Name, &w.Status, &config,
		&artifacts, &results, &errMsg, &w.CreatedAt, &w.UpdatedAt,
	); err != nil {
		return nil, err
	}
	w.DatasetID = datasetID.String
	w.Error = errMsg.String
	if err := json.Unmarshal([]byte(config), &w.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if artifacts.Valid && artifacts.String != "" {
		w.Artifacts = &model.RunArtifacts{}
		if err := json.Unmarshal([]byte(artifacts.String), w.Artifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts: %w", err)
		}
	}
	if results.Valid && results.String != "" {
		w.Results = &model.RunResults{}
		if err := json.Unmarshal([]byte(results.String), w.Results); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
	}
	return w, nil
}

// marshalNullable encodes v as JSON, mapping nil pointers to SQL NULL.
func marshalNullable(v any) (any, error) {
	switch t := v.(type) {
	case *model.Analysis:
		if t == nil {
			return nil, nil
		}
	case *model.RunArtifacts:
		if t == nil {
			return nil, nil
		}
	case *model.RunResults:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func checkAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
