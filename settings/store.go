// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package settings implements the non-volatile key/value settings store of the daemon, backed by SQLite.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // pure Go driver

	"github.com/openthread/ot-daemon/logger"
)

type Config struct {
	BusyTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BusyTimeout: 5 * time.Second,
	}
}

// Store is a key/value store of binary values. Keys are namespaced with '/' separators, e.g.
// "stack/sim/active_dataset".
type Store struct {
	db   *sql.DB
	path string
}

const schema = `CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// Open opens or creates the settings database at path.
func Open(path string, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(FULL)",
		path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open settings %s", path)
	}
	// settings access is serialized over one connection
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping settings %s", path)
	}
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create settings schema")
	}

	logger.Debugf("settings store opened: %s", path)
	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Get returns the value of key, and false if the key is not present.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get setting %s", key)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return errors.Wrapf(err, "set setting %s", key)
}

func (s *Store) GetString(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.Get(ctx, key)
	return string(v), ok, err
}

func (s *Store) SetString(ctx context.Context, key string, value string) error {
	return s.Set(ctx, key, []byte(value))
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return errors.Wrapf(err, "delete setting %s", key)
}

// DeletePrefix deletes all keys starting with prefix and returns the number of deleted keys.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE substr(key, 1, ?) = ?`, len(prefix), prefix)
	if err != nil {
		return 0, errors.Wrapf(err, "delete settings %s*", prefix)
	}
	return res.RowsAffected()
}

// Keys returns the sorted keys starting with prefix.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM settings WHERE substr(key, 1, ?) = ? ORDER BY key`,
		len(prefix), prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "list settings %s*", prefix)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err = rows.Scan(&k); err != nil {
			return nil, errors.Wrap(err, "scan setting key")
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) Close() error {
	logger.Debugf("settings store closed: %s", s.path)
	return s.db.Close()
}

// Namespace is a view of the store restricted to keys under a prefix.
type Namespace struct {
	store  *Store
	prefix string
}

// Namespace returns a view of the keys below name.
func (s *Store) Namespace(name string) *Namespace {
	return &Namespace{store: s, prefix: strings.TrimSuffix(name, "/") + "/"}
}

func (ns *Namespace) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return ns.store.Get(ctx, ns.prefix+key)
}

func (ns *Namespace) Set(ctx context.Context, key string, value []byte) error {
	return ns.store.Set(ctx, ns.prefix+key, value)
}

func (ns *Namespace) Delete(ctx context.Context, key string) error {
	return ns.store.Delete(ctx, ns.prefix+key)
}

// Wipe deletes all keys of the namespace.
func (ns *Namespace) Wipe(ctx context.Context) error {
	n, err := ns.store.DeletePrefix(ctx, ns.prefix)
	if err == nil {
		logger.Debugf("settings %s wiped, %d keys deleted", ns.prefix, n)
	}
	return err
}
