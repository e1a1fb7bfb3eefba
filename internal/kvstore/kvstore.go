package kvstore

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Store is a scoped key/value store backed by SQLite. The kernel
// selector keeps its per-document-type preference cache here and the
// editor round-trips view-state blobs through it.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	scope TEXT NOT NULL,
	key   TEXT NOT NULL,
	value BLOB NOT NULL,
	PRIMARY KEY (scope, key)
);
`

// Open opens (creating if needed) a store at path. Use ":memory:" for
// an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open kv store")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create kv schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(scope, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE scope = ? AND key = ?`, scope, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "kv get")
	}
	return value, true, nil
}

func (s *Store) Set(scope, key string, value []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (scope, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value`,
		scope, key, value,
	)
	return errors.Wrap(err, "kv set")
}

func (s *Store) Delete(scope, key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE scope = ? AND key = ?`, scope, key)
	return errors.Wrap(err, "kv delete")
}

func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "close kv store")
}

// Memory is an in-process store used by tests and by hosts that do not
// persist preferences.
type Memory struct {
	data map[[2]string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: map[[2]string][]byte{}}
}

func (m *Memory) Get(scope, key string) ([]byte, bool, error) {
	v, ok := m.data[[2]string{scope, key}]
	return v, ok, nil
}

func (m *Memory) Set(scope, key string, value []byte) error {
	m.data[[2]string{scope, key}] = value
	return nil
}

func (m *Memory) Delete(scope, key string) error {
	delete(m.data, [2]string{scope, key})
	return nil
}
