package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"git.sr.ht/~jakintosh/studydesk/internal/domain"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var _ domain.DocumentStore = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db      *sql.DB
	path    string
	hub     *hub
	watcher *fsnotify.Watcher
}

// NewSQLiteStore opens the database at path. When watch is set, changes
// written to the file by other processes also wake live subscriptions.
func NewSQLiteStore(path string, watch bool) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	s.hub = newHub(s.FetchAll)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if watch && path != ":memory:" {
		if err := s.watch(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to watch database: %w", err)
		}
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			collection TEXT NOT NULL,
			fields TEXT NOT NULL DEFAULT '{}'
		);

		CREATE INDEX IF NOT EXISTS documents_collection
			ON documents(collection, seq);
	`)
	return err
}

func (s *SQLiteStore) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	s.watcher = w

	base := filepath.Base(s.path)
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				// the main file plus its -wal and -journal siblings
				if !strings.HasPrefix(filepath.Base(ev.Name), base) {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					s.hub.notifyAll()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("watch %s: %v", s.path, err)
			}
		}
	}()
	return nil
}

func (s *SQLiteStore) FetchAll(ctx context.Context, collection string) ([]domain.Document, error) {
	return s.FetchWhere(ctx, collection)
}

func (s *SQLiteStore) FetchWhere(ctx context.Context, collection string, preds ...domain.Predicate) ([]domain.Document, error) {
	query := `
		SELECT
			id,
			fields
		FROM documents
		WHERE collection = ?`
	args := []any{collection}
	for _, p := range preds {
		if err := domain.ValidateField(p.Field); err != nil {
			return nil, err
		}
		query += ` AND json_extract(fields, ?) = ?`
		args = append(args, "$."+p.Field, p.Value)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		var (
			d   domain.Document
			raw string
		)
		if err := rows.Scan(
			&d.ID,
			&raw,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &d.Fields); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, d.ID, err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) Insert(ctx context.Context, collection string, fields domain.Fields) (string, error) {
	id := uuid.NewString()

	raw, err := json.Marshal(fields.Clone())
	if err != nil {
		return "", err
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, collection, fields)
		VALUES (?, ?, ?)`,
		id,
		collection,
		string(raw),
	); err != nil {
		return "", err
	}

	s.hub.notify(collection)
	return id, nil
}

func (s *SQLiteStore) DeleteByID(ctx context.Context, collection string, id string) error {
	var removed string
	if err := s.db.QueryRowContext(ctx, `
		DELETE FROM documents
		WHERE collection = ? AND id = ?
		RETURNING id`,
		collection,
		id,
	).Scan(&removed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
		}
		return err
	}

	s.hub.notify(collection)
	return nil
}

func (s *SQLiteStore) Subscribe(ctx context.Context, collection string, fn domain.SnapshotFunc) (domain.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, collection, fn), nil
}

func (s *SQLiteStore) Close() error {
	s.hub.close()
	if s.watcher != nil {
		s.watcher.Close()
	}
	return s.db.Close()
}
