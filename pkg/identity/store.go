package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/redis/go-redis/v9"

	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
	"github.com/otherjamesbrown/groupprep/pkg/logging"
)

// Store persists identity maps between runs.
type Store interface {
	Save(ctx context.Context, m *Map) error
	Load(ctx context.Context) (*Map, error)
}

// Persist saves m and logs, rather than returns, any failure: a map that
// cannot be written never blocks identity assignment.
func Persist(ctx context.Context, store Store, m *Map, logger logging.Logger) bool {
	if store == nil {
		return false
	}
	if err := store.Save(ctx, m); err != nil {
		logger.Warn("Failed to persist identity map", logging.Err(err), logging.F("identities", m.Len()))
		return false
	}
	logger.Debug("Persisted identity map", logging.F("identities", m.Len()))
	return true
}

// FileStore keeps the map as a JSON object of key to identity.
type FileStore struct {
	Path string
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Save writes the map in identity order with four-space indentation.
func (s *FileStore) Save(_ context.Context, m *Map) error {
	data, err := m.MarshalJSON()
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "    "); err != nil {
		return fmt.Errorf("formatting identity map: %w", err)
	}

	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating identity map directory: %w", err)
		}
	}
	if err := os.WriteFile(s.Path, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing identity map: %w", err)
	}
	return nil
}

// Load reads the map. A missing file is returned as the os error; a file
// that does not parse is a ConfigLoadError.
func (s *FileStore) Load(_ context.Context) (*Map, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading identity map: %w", err)
	}
	m := NewMap()
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, &gperrors.ConfigLoadError{Path: s.Path, Cause: err}
	}
	return m, nil
}

// MarshalJSON encodes the map as an object whose members appear in identity order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	out := []byte{'{'}
	for i, k := range m.keys {
		if i > 0 {
			out = append(out, ',')
		}
		buf.Reset()
		if err := enc.Encode(k); err != nil {
			return nil, err
		}
		out = append(out, bytes.TrimRight(buf.Bytes(), "\n")...)
		out = append(out, ':')
		out = strconv.AppendInt(out, int64(i+1), 10)
	}
	return append(out, '}'), nil
}

// UnmarshalJSON decodes an object of key to integer identity.
func (m *Map) UnmarshalJSON(data []byte) error {
	var pairs map[string]int
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	loaded, err := FromPairs(pairs)
	if err != nil {
		return err
	}
	*m = *loaded
	return nil
}

// hashClient is the subset of the redis client used by RedisStore.
type hashClient interface {
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisStore keeps the map in a redis hash, one field per key.
type RedisStore struct {
	client hashClient
	key    string
}

// NewRedisStore creates a RedisStore writing to the hash at key.
func NewRedisStore(client hashClient, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Save replaces the hash with the current map.
func (s *RedisStore) Save(ctx context.Context, m *Map) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clearing identity hash: %w", err)
	}
	if m.Len() == 0 {
		return nil
	}
	values := make([]interface{}, 0, 2*m.Len())
	for i, k := range m.keys {
		values = append(values, k, i+1)
	}
	if err := s.client.HSet(ctx, s.key, values...).Err(); err != nil {
		return fmt.Errorf("writing identity hash: %w", err)
	}
	return nil
}

// Load reads the hash back into a Map.
func (s *RedisStore) Load(ctx context.Context) (*Map, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading identity hash: %w", err)
	}
	pairs := make(map[string]int, len(fields))
	for k, v := range fields {
		id, err := strconv.Atoi(v)
		if err != nil {
			return nil, &gperrors.ConfigLoadError{Path: "redis:" + s.key, Cause: fmt.Errorf("identity for %q: %w", k, err)}
		}
		pairs[k] = id
	}
	m, err := FromPairs(pairs)
	if err != nil {
		return nil, &gperrors.ConfigLoadError{Path: "redis:" + s.key, Cause: err}
	}
	return m, nil
}
