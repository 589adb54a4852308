package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenk/backoff"
	"github.com/hashicorp/go-hclog"
	"modernc.org/sqlite"

	internalErrors "github.com/lippkg/lip-index/internal/errors"
	"github.com/lippkg/lip-index/model"
	"github.com/lippkg/lip-index/services"
	"github.com/lippkg/lip-index/store/migrations"
)

// MemoryPath opens a private in-memory SQLite database.
const MemoryPath = ":memory:"

const selectColumns = `repo_owner, repo_name, version, name, description, author, tags,
	avatar_url, star_count, repo_created_at, released_at, is_latest`

// foldFunction is the SQL name of the Unicode lower-casing scalar used for term
// matching. SQLite's own lower() only folds ASCII.
const foldFunction = "fold"

func init() {
	if err := sqlite.RegisterDeterministicScalarFunction(foldFunction, 1, foldText); err != nil {
		panic(fmt.Sprintf("store: register %s: %v", foldFunction, err))
	}
}

// foldText lower-cases its argument the same way the search terms are folded.
func foldText(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// SQLiteStore is the catalog backed by a SQLite database.
//
// Reads run as independent statements without an explicit transaction, so a search
// may observe a repository while its latest flag is being moved.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger hclog.Logger
}

var _ services.Catalog = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the catalog database at path, waits until it
// answers, and applies pending migrations.
func OpenSQLite(ctx context.Context, path string, logger hclog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		// WAL lets searches proceed while the synchronizer writes
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == MemoryPath {
		// Every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db, path: path, logger: logger}

	if err := s.waitForConnection(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) waitForConnection(ctx context.Context) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second
	expBackoff.MaxElapsedTime = time.Minute

	err := backoff.RetryNotify(func() error {
		return s.db.PingContext(ctx)
	}, backoff.WithContext(expBackoff, ctx), func(err error, next time.Duration) {
		s.logger.Error("database is not ready", "error", err, "retry_in", next)
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	return nil
}

// migrate runs all pending migrations.
func (s *SQLiteStore) migrate(ctx context.Context, fsys fs.FS) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_create_tooth_versions.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
		s.logger.Info("applied migration", "name", name)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// FindAndCountAll implements services.CatalogReader. The count and the page are
// read by two separate statements.
func (s *SQLiteStore) FindAndCountAll(ctx context.Context, spec services.QuerySpec) (int, []model.ToothVersion, error) {
	where, args, err := buildWhere(spec)
	if err != nil {
		return 0, nil, err
	}
	orderBy, err := columnName(spec.Sort)
	if err != nil {
		return 0, nil, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tooth_versions"+where, args...).Scan(&count); err != nil {
		return 0, nil, fmt.Errorf("counting tooth versions: %w", err)
	}

	limit := spec.Limit
	if limit <= 0 {
		limit = -1 // no limit
	}
	pageQuery := "SELECT " + selectColumns + " FROM tooth_versions" + where +
		" ORDER BY " + orderBy + " " + spec.Direction.String() + " LIMIT ? OFFSET ?"
	pageArgs := append(append([]any{}, args...), limit, max(spec.Offset, 0))

	rows, err := s.db.QueryContext(ctx, pageQuery, pageArgs...)
	if err != nil {
		return 0, nil, fmt.Errorf("querying tooth versions: %w", err)
	}
	defer rows.Close()

	entries, err := scanVersions(rows)
	if err != nil {
		return 0, nil, err
	}
	return count, entries, nil
}

// ListVersions implements services.CatalogReader, newest release first.
func (s *SQLiteStore) ListVersions(ctx context.Context, repoOwner, repoName string) ([]model.ToothVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM tooth_versions WHERE repo_owner = ? AND repo_name = ? ORDER BY released_at DESC, version DESC",
		repoOwner, repoName)
	if err != nil {
		return nil, fmt.Errorf("listing versions of %s/%s: %w", repoOwner, repoName, err)
	}
	defer rows.Close()

	return scanVersions(rows)
}

// GetVersion implements services.CatalogReader.
func (s *SQLiteStore) GetVersion(ctx context.Context, repoOwner, repoName, version string) (model.ToothVersion, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM tooth_versions WHERE repo_owner = ? AND repo_name = ? AND version = ?",
		repoOwner, repoName, version)

	entry, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ToothVersion{}, internalErrors.NewToothNotFoundError(repoOwner+"/"+repoName, version)
	}
	if err != nil {
		return model.ToothVersion{}, fmt.Errorf("getting %s/%s@%s: %w", repoOwner, repoName, version, err)
	}
	return entry, nil
}

// UpsertVersion implements services.CatalogWriter. An existing latest flag is kept.
func (s *SQLiteStore) UpsertVersion(ctx context.Context, entry model.ToothVersion) error {
	tags := entry.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshalling tags: %w", err)
	}

	var avatarURL sql.NullString
	if entry.AvatarURL != nil {
		avatarURL = sql.NullString{String: *entry.AvatarURL, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tooth_versions (
			repo_owner, repo_name, version, name, description, author, tags,
			avatar_url, star_count, repo_created_at, released_at, is_latest, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT (repo_owner, repo_name, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			author = excluded.author,
			tags = excluded.tags,
			avatar_url = excluded.avatar_url,
			star_count = excluded.star_count,
			repo_created_at = excluded.repo_created_at,
			released_at = excluded.released_at,
			updated_at = excluded.updated_at
	`,
		entry.RepoOwner, entry.RepoName, entry.Version, entry.Name, entry.Description, entry.Author,
		string(tagsJSON), avatarURL, entry.StarCount,
		entry.RepoCreatedAt.UTC().UnixNano(), entry.ReleasedAt.UTC().UnixNano(), time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upserting %s@%s: %w", entry.RepoKey(), entry.Version, err)
	}
	return nil
}

// SetLatest implements services.CatalogWriter. The flag moves in a single statement,
// so the repository never has two latest rows inside this store.
func (s *SQLiteStore) SetLatest(ctx context.Context, repoOwner, repoName, version string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tooth_versions WHERE repo_owner = ? AND repo_name = ? AND version = ?",
		repoOwner, repoName, version).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking %s/%s@%s: %w", repoOwner, repoName, version, err)
	}
	if exists == 0 {
		return internalErrors.NewToothNotFoundError(repoOwner+"/"+repoName, version)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE tooth_versions SET is_latest = (version = ?) WHERE repo_owner = ? AND repo_name = ?",
		version, repoOwner, repoName)
	if err != nil {
		return fmt.Errorf("setting latest %s/%s@%s: %w", repoOwner, repoName, version, err)
	}

	return tx.Commit()
}

// buildWhere compiles the filter part of spec into a WHERE clause.
func buildWhere(spec services.QuerySpec) (string, []any, error) {
	var clauses []string
	var args []any

	for _, term := range spec.Terms {
		needle := strings.ToLower(term.Term)
		ors := make([]string, 0, len(term.Fields))
		for _, col := range term.Fields {
			name, err := columnName(col)
			if err != nil {
				return "", nil, err
			}
			ors = append(ors, "instr("+foldFunction+"("+name+"), ?) > 0")
			args = append(args, needle)
		}
		if len(ors) == 0 {
			clauses = append(clauses, "0")
			continue
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}

	for _, tag := range spec.Tags {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(tooth_versions.tags) WHERE json_each.value = ?)")
		args = append(args, tag)
	}

	if spec.LatestOnly {
		clauses = append(clauses, "is_latest = 1")
	}

	if len(clauses) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// columnName maps a logical column to its SQL column.
func columnName(col services.Column) (string, error) {
	switch col {
	case services.ColumnRepoOwner:
		return "repo_owner", nil
	case services.ColumnRepoName:
		return "repo_name", nil
	case services.ColumnName:
		return "name", nil
	case services.ColumnDescription:
		return "description", nil
	case services.ColumnAuthor:
		return "author", nil
	case services.ColumnStarCount:
		return "star_count", nil
	case services.ColumnRepoCreatedAt:
		return "repo_created_at", nil
	case services.ColumnReleasedAt:
		return "released_at", nil
	default:
		return "", fmt.Errorf("unknown column %d", int(col))
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (model.ToothVersion, error) {
	var (
		entry         model.ToothVersion
		tagsJSON      string
		avatarURL     sql.NullString
		repoCreatedAt int64
		releasedAt    int64
		isLatest      int
	)

	err := row.Scan(&entry.RepoOwner, &entry.RepoName, &entry.Version, &entry.Name, &entry.Description,
		&entry.Author, &tagsJSON, &avatarURL, &entry.StarCount, &repoCreatedAt, &releasedAt, &isLatest)
	if err != nil {
		return model.ToothVersion{}, err
	}

	entry.Tags = []string{}
	if err := json.Unmarshal([]byte(tagsJSON), &entry.Tags); err != nil {
		return model.ToothVersion{}, fmt.Errorf("decoding tags of %s@%s: %w", entry.RepoKey(), entry.Version, err)
	}
	if avatarURL.Valid {
		entry.AvatarURL = &avatarURL.String
	}
	entry.RepoCreatedAt = time.Unix(0, repoCreatedAt).UTC()
	entry.ReleasedAt = time.Unix(0, releasedAt).UTC()
	entry.IsLatest = isLatest != 0

	return entry, nil
}

func scanVersions(rows *sql.Rows) ([]model.ToothVersion, error) {
	entries := make([]model.ToothVersion, 0)
	for rows.Next() {
		entry, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tooth version: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tooth versions: %w", err)
	}
	return entries, nil
}
