// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/toolkeeper/internal/filter"
)

const driverName = "sqlite3_toolkeeper"

var (
	registerOnce sync.Once
	patterns     = newPatternCache(maxCachedPatterns)
)

// registerDriver installs a sqlite3 driver whose connections understand REGEXP.
func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("regexp", regexpMatch, true)
			},
		})
	})
}

// regexpMatch backs "subject REGEXP pattern", which SQLite calls as regexp(pattern, subject).
func regexpMatch(pattern, subject string) (bool, error) {
	if cached, ok := patterns.Get(pattern); ok {
		return cached.MatchString(subject), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	patterns.Set(pattern, re)
	return re.MatchString(subject), nil
}

// SQLiteStorage implements Storage using SQLite. Each collection is a table holding
// JSON documents; filters are evaluated with SQLite's JSON functions.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	registerDriver()
	db, err := sql.Open(driverName, dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	for collection, unique := range uniqueFields {
		schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_created_at ON %[1]s(created_at);
		`, collection)
		if unique != "" {
			schema += fmt.Sprintf(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_%[2]s ON %[1]s(json_extract(data, '$.%[2]s'));
		`, collection, unique)
		}
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("collection %s: %w", collection, err)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// Find returns documents matching f in insertion order.
func (s *SQLiteStorage) Find(ctx context.Context, collection string, f filter.Expr, opts FindOptions) ([]Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	where, args, err := translate(f)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, data FROM %s WHERE %s ORDER BY rowid`, collection, where)
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, opts.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		doc, err := decodeDocument(id, data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// FindOne returns the first document matching f.
func (s *SQLiteStorage) FindOne(ctx context.Context, collection string, f filter.Expr) (Document, error) {
	docs, err := s.Find(ctx, collection, f, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// Get returns a document by ID.
func (s *SQLiteStorage) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	var data string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, collection), id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument(id, data)
}

// InsertOne inserts a document.
func (s *SQLiteStorage) InsertOne(ctx context.Context, collection string, doc Document) (string, error) {
	if err := checkCollection(collection); err != nil {
		return "", err
	}
	id, data, err := encodeDocument(doc)
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)`, collection),
		id, data, now, now,
	)
	if err != nil {
		return "", mapError(err)
	}
	return id, nil
}

// InsertMany inserts every document it can, without a transaction, so one conflict
// does not discard the rest.
func (s *SQLiteStorage) InsertMany(ctx context.Context, collection string, docs []Document) ([]string, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	return insertEach(ctx, s, collection, docs)
}

// UpdateOne replaces an existing document.
func (s *SQLiteStorage) UpdateOne(ctx context.Context, collection, id string, doc Document) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	withID := make(Document, len(doc)+1)
	for k, v := range doc {
		withID[k] = v
	}
	withID[IDField] = id
	_, data, err := encodeDocument(withID)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET data = ?, updated_at = ? WHERE id = ?`, collection),
		data, time.Now(), id,
	)
	if err != nil {
		return mapError(err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return nil
}

// DeleteOne removes a document by ID.
func (s *SQLiteStorage) DeleteOne(ctx context.Context, collection, id string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, collection), id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return nil
}

// Distinct returns the sorted distinct non-empty text values of field.
func (s *SQLiteStorage) Distinct(ctx context.Context, collection, field string) ([]string, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	parts, err := filter.SplitField(field)
	if err != nil {
		return nil, err
	}
	var query string
	if len(parts) == 1 {
		query = fmt.Sprintf(`
		SELECT DISTINCT v.value FROM %[1]s, json_each(%[1]s.data, '$.%[2]s') v
		WHERE json_type(%[1]s.data, '$.%[2]s') <> 'object' AND v.type = 'text' AND v.value <> ''
		ORDER BY 1`, collection, parts[0])
	} else {
		query = fmt.Sprintf(`
		SELECT value FROM (
			SELECT v.value AS value FROM %[1]s, json_each(%[1]s.data, '$.%[2]s.%[3]s') v
			WHERE json_type(%[1]s.data, '$.%[2]s.%[3]s') <> 'object' AND v.type = 'text'
			UNION
			SELECT v.value AS value FROM %[1]s, json_each(%[1]s.data, '$.%[2]s') e,
				json_each(CASE WHEN e.type = 'object' THEN e.value ELSE '{}' END, '$.%[3]s') v
			WHERE json_type(%[1]s.data, '$.%[2]s') = 'array'
				AND json_type(CASE WHEN e.type = 'object' THEN e.value ELSE '{}' END, '$.%[3]s') <> 'object'
				AND v.type = 'text'
		) WHERE value <> '' ORDER BY 1`, collection, parts[0], parts[1])
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("distinct %s.%s: %w", collection, field, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Count returns the number of documents matching f.
func (s *SQLiteStorage) Count(ctx context.Context, collection string, f filter.Expr) (int64, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	where, args, err := translate(f)
	if err != nil {
		return 0, err
	}
	var count int64
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, collection, where), args...,
	).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// mapError turns SQLite uniqueness violations into ErrDuplicateKey. SQLite reports
// them with dedicated extended codes, so other constraint failures stay distinct.
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}

// encodeDocument splits the ID off doc and serializes the rest.
func encodeDocument(doc Document) (string, string, error) {
	id, _ := doc[IDField].(string)
	if id == "" {
		id = uuid.NewString()
	}
	body := make(Document, len(doc))
	for k, v := range doc {
		if k != IDField {
			body[k] = v
		}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal document: %w", err)
	}
	return id, string(data), nil
}

func decodeDocument(id, data string) (Document, error) {
	doc := make(Document)
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document %s: %w", id, err)
	}
	doc[IDField] = id
	return doc, nil
}
