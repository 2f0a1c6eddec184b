package cooldown

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5"
)

// Backend loads and saves the flat SKU → timestamp mapping that is the only
// durable state of the monitor.
type Backend interface {
	Name() string
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, entries map[string]string) error
}

// LoadInto loads the backend into the store. A failed load is logged,
// leaves the store empty and is returned. The price check cycle ignores the
// error and starts fresh; callers that write the store back must not.
func LoadInto(ctx context.Context, b Backend, s *Store, logger *slog.Logger) error {
	if !s.Enabled() {
		logger.Debug("Cooldown persistence disabled")
		s.Replace(nil)
		return nil
	}
	m, err := b.Load(ctx)
	if err != nil {
		logger.Error("Failed to load SKU fetch timestamps, starting fresh", "backend", b.Name(), "error", err)
		s.Replace(nil)
		return fmt.Errorf("load from %s backend: %w", b.Name(), err)
	}
	s.Replace(m)
	logger.Debug("Loaded SKU fetch timestamps", "backend", b.Name(), "count", len(m))
	return nil
}

// --------------------------------------------------------------------------
// Nop
// --------------------------------------------------------------------------

// NopBackend is used when persistence is disabled.
type NopBackend struct{}

func (NopBackend) Name() string { return "none" }

func (NopBackend) Load(context.Context) (map[string]string, error) { return map[string]string{}, nil }

func (NopBackend) Save(context.Context, map[string]string) error { return nil }

// --------------------------------------------------------------------------
// File
// --------------------------------------------------------------------------

// FileBackend keeps the mapping in a JSON object on disk.
type FileBackend struct {
	Path string
}

// NewFileBackend returns a FileBackend for path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

func (f *FileBackend) Name() string { return "file" }

// Load reads the file. A missing file is an empty mapping. Non-string values
// are kept in their JSON text form and will read as corrupt timestamps.
func (f *FileBackend) Load(_ context.Context) (map[string]string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}

	out := make(map[string]string, len(raw))
	for sku, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			s = string(v)
		}
		out[sku] = s
	}
	return out, nil
}

// Save writes the mapping to a temp file beside Path and renames it over
// Path, so a crash mid-write never leaves a truncated file.
func (f *FileBackend) Save(_ context.Context, entries map[string]string) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode timestamps: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Postgres
// --------------------------------------------------------------------------

// PgxConn is the subset of *pgxpool.Pool the Postgres backend needs.
type PgxConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresBackend keeps the mapping in the sku_fetch_timestamps table.
// Statements are registered by the db package on every new connection.
type PostgresBackend struct {
	conn PgxConn
}

// NewPostgresBackend wraps a pool.
func NewPostgresBackend(conn PgxConn) *PostgresBackend {
	return &PostgresBackend{conn: conn}
}

func (p *PostgresBackend) Name() string { return "postgres" }

func (p *PostgresBackend) Load(ctx context.Context) (map[string]string, error) {
	rows, err := p.conn.Query(ctx, "cooldown_load")
	if err != nil {
		return nil, fmt.Errorf("load sku fetch timestamps: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var sku, fetchedAt string
		if err := rows.Scan(&sku, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan sku fetch timestamp: %w", err)
		}
		out[sku] = fetchedAt
	}
	return out, rows.Err()
}

// Save replaces the table contents in one transaction.
func (p *PostgresBackend) Save(ctx context.Context, entries map[string]string) error {
	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, "cooldown_clear"); err != nil {
		return fmt.Errorf("clear sku fetch timestamps: %w", err)
	}

	rows := make([][]any, 0, len(entries))
	for _, sku := range sortedKeys(entries) {
		rows = append(rows, []any{sku, entries[sku]})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"sku_fetch_timestamps"},
		[]string{"sku", "fetched_at"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy sku fetch timestamps: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Redis
// --------------------------------------------------------------------------

// RedisBackend keeps the mapping in a single Redis hash.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend stores the mapping under key.
func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	return &RedisBackend{client: client, key: key}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Load(ctx context.Context) (map[string]string, error) {
	m, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", r.key, err)
	}
	return m, nil
}

// Save builds the new hash under a staging key and renames it over the live
// key, so readers see either the old or the new mapping.
func (r *RedisBackend) Save(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		if err := r.client.Del(ctx, r.key).Err(); err != nil {
			return fmt.Errorf("del %s: %w", r.key, err)
		}
		return nil
	}

	staging := r.key + ":staging"
	if err := r.client.Del(ctx, staging).Err(); err != nil {
		return fmt.Errorf("del %s: %w", staging, err)
	}

	values := make([]interface{}, 0, len(entries)*2)
	for _, sku := range sortedKeys(entries) {
		values = append(values, sku, entries[sku])
	}
	if err := r.client.HSet(ctx, staging, values...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", staging, err)
	}
	if err := r.client.Rename(ctx, staging, r.key).Err(); err != nil {
		return fmt.Errorf("rename %s: %w", staging, err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
