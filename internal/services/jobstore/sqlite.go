package jobstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gcottom/riff/internal/source"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

type SQLiteStore struct {
	db  *sql.DB
	exp expiry
}

const jobColumns = `id, status, step, progress, url_type, source_id, metadata, playlist_info,
	download_url, filename, file_size, quality, error, created_at, updated_at, completed_at`

func NewSQLiteStore(path string, retention time.Duration, now func() time.Time) (*SQLiteStore, error) {
	registerHook()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; transactions serialize read-modify-write updates
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db, exp: newExpiry(retention, now)}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, job *Job) error {
	args, err := jobArgs(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		if _, gerr := s.get(ctx, s.db, job.ID); gerr == nil {
			return ErrExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	j, err := s.get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if s.exp.expired(j) {
		return nil, ErrNotFound
	}
	return j, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	j, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if s.exp.expired(j) {
		return nil, ErrNotFound
	}
	if err = fn(j); err != nil {
		return nil, err
	}
	j.ID = id
	j.UpdatedAt = s.exp.now()
	args, err := jobArgs(j)
	if err != nil {
		return nil, err
	}
	// args[0] is the id; move it to the WHERE clause
	_, err = tx.ExecContext(ctx, `UPDATE jobs SET status = ?, step = ?, progress = ?, url_type = ?, source_id = ?,
		metadata = ?, playlist_info = ?, download_url = ?, filename = ?, file_size = ?, quality = ?, error = ?,
		created_at = ?, updated_at = ?, completed_at = ? WHERE id = ?`, append(args[1:], id)...)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return j, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, status Status) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = ? AND created_at >= ? ORDER BY created_at`,
		string(status), s.cutoffNano())
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	out := make([]*Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		if !s.exp.expired(j) {
			out = append(out, j)
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep jobs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, created_at FROM jobs WHERE created_at >= ?`, s.cutoffNano())
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()
	var st Stats
	for rows.Next() {
		var status string
		var created int64
		if err = rows.Scan(&status, &created); err != nil {
			return Stats{}, err
		}
		if !s.exp.expired(&Job{CreatedAt: time.Unix(0, created)}) {
			st.add(Status(status))
		}
	}
	return st, rows.Err()
}

func (s *SQLiteStore) cutoffNano() int64 {
	if s.exp.retention <= 0 {
		return math.MinInt64
	}
	return s.exp.cutoff().UnixNano()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) get(ctx context.Context, q queryer, id string) (*Job, error) {
	j, err := scanJob(q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

func scanJob(row scanner) (*Job, error) {
	var (
		j                      Job
		status, kind           string
		metadata, playlistInfo sql.NullString
		created, updated       int64
		completed              sql.NullInt64
	)
	err := row.Scan(&j.ID, &status, &j.Step, &j.Progress, &kind, &j.SourceID, &metadata, &playlistInfo,
		&j.DownloadURL, &j.Filename, &j.FileSize, &j.Quality, &j.Error, &created, &updated, &completed)
	if err != nil {
		return nil, err
	}
	j.Status = Status(status)
	j.SourceKind = source.Kind(kind)
	j.CreatedAt = time.Unix(0, created)
	j.UpdatedAt = time.Unix(0, updated)
	if completed.Valid {
		t := time.Unix(0, completed.Int64)
		j.CompletedAt = &t
	}
	if metadata.Valid && metadata.String != "" {
		j.Metadata = &JobMetadata{}
		if err = json.Unmarshal([]byte(metadata.String), j.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if playlistInfo.Valid && playlistInfo.String != "" {
		j.PlaylistInfo = &PlaylistInfo{}
		if err = json.Unmarshal([]byte(playlistInfo.String), j.PlaylistInfo); err != nil {
			return nil, fmt.Errorf("decode playlist info: %w", err)
		}
	}
	return &j, nil
}

func jobArgs(j *Job) ([]any, error) {
	metadata, err := nullableJSON(j.Metadata)
	if err != nil {
		return nil, err
	}
	playlistInfo, err := nullableJSON(j.PlaylistInfo)
	if err != nil {
		return nil, err
	}
	var completed sql.NullInt64
	if j.CompletedAt != nil {
		completed = sql.NullInt64{Int64: j.CompletedAt.UnixNano(), Valid: true}
	}
	return []any{
		j.ID, string(j.Status), j.Step, j.Progress, string(j.SourceKind), j.SourceID, metadata, playlistInfo,
		j.DownloadURL, j.Filename, j.FileSize, j.Quality, j.Error,
		j.CreatedAt.UnixNano(), j.UpdatedAt.UnixNano(), completed,
	}, nil
}

func nullableJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
