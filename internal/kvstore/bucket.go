package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Store is the key/value contract consumed by the recovery store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

var _ Store = (*Bucket)(nil)

// Bucket is one scope of the kv table.
type Bucket struct {
	db    *DB
	scope string
}

// Get returns the value stored under key and whether it exists.
func (b *Bucket) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := b.db.conn.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE scope = ? AND key = ?`, b.scope, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvstore: get %s/%s: %w", b.scope, key, err)
	}
	return v, true, nil
}

// Set stores value under key, replacing any previous value.
func (b *Bucket) Set(ctx context.Context, key, value string) error {
	_, err := b.db.conn.ExecContext(ctx, `
		INSERT INTO kv (scope, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(scope, key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, b.scope, key, value)
	if err != nil {
		return fmt.Errorf("kvstore: set %s/%s: %w", b.scope, key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	if _, err := b.db.conn.ExecContext(ctx,
		`DELETE FROM kv WHERE scope = ? AND key = ?`, b.scope, key); err != nil {
		return fmt.Errorf("kvstore: delete %s/%s: %w", b.scope, key, err)
	}
	return nil
}

// Keys returns every key starting with prefix, sorted.
func (b *Bucket) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := b.db.conn.QueryContext(ctx, `
		SELECT key FROM kv
		WHERE scope = ? AND substr(key, 1, length(?)) = ?
		ORDER BY key
	`, b.scope, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("kvstore: keys %s: %w", b.scope, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("kvstore: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeletePrefix removes every key starting with prefix and returns how many
// were removed.
func (b *Bucket) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := b.db.conn.ExecContext(ctx, `
		DELETE FROM kv
		WHERE scope = ? AND substr(key, 1, length(?)) = ?
	`, b.scope, prefix, prefix)
	if err != nil {
		return 0, fmt.Errorf("kvstore: delete prefix %s: %w", b.scope, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
