package identity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
	"github.com/otherjamesbrown/groupprep/pkg/logging"
)

func sampleMap(t *testing.T) *Map {
	t.Helper()
	m, err := FromPairs(map[string]int{"AnaLee": 1, "BobTan": 2, "ZoëMüller": 3})
	require.NoError(t, err)
	return m
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "name_id_map.json")
	store := NewFileStore(path)
	m := sampleMap(t)

	require.NoError(t, store.Save(context.Background(), m))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"AnaLee\": 1,\n    \"BobTan\": 2,\n    \"ZoëMüller\": 3\n}", string(data))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, m.Keys(), loaded.Keys())
	assert.Equal(t, m.Pairs(), loaded.Pairs())
}

func TestFileStore_EmptyMap(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "map.json"))
	require.NoError(t, store.Save(context.Background(), NewMap()))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
}

func TestFileStore_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"AnaLee": "one"`), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	assert.True(t, gperrors.IsConfigLoad(err))
}

func TestFileStore_Missing(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "absent.json")).Load(context.Background())
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.False(t, gperrors.IsConfigLoad(err))
}

type failingStore struct{}

func (failingStore) Save(context.Context, *Map) error   { return errors.New("disk full") }
func (failingStore) Load(context.Context) (*Map, error) { return nil, errors.New("disk full") }

func TestPersist_FailureIsNotFatal(t *testing.T) {
	ok := Persist(context.Background(), failingStore{}, sampleMap(t), logging.NewNopLogger())
	assert.False(t, ok)

	assert.False(t, Persist(context.Background(), nil, sampleMap(t), logging.NewNopLogger()))
}

// fakeHash is an in-memory stand-in for the redis hash commands.
type fakeHash struct {
	data   map[string]map[string]string
	setErr error
}

func (f *fakeHash) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeHash) HSet(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.setErr != nil {
		return redis.NewIntResult(0, f.setErr)
	}
	h := f.data[key]
	if h == nil {
		h = map[string]string{}
		f.data[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = strconv.Itoa(values[i+1].(int))
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeHash) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	out := map[string]string{}
	for k, v := range f.data[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	client := &fakeHash{data: map[string]map[string]string{}}
	store := NewRedisStore(client, "groupprep:identities")
	m := sampleMap(t)

	require.NoError(t, store.Save(context.Background(), m))
	assert.Equal(t, "2", client.data["groupprep:identities"]["BobTan"])

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, m.Keys(), loaded.Keys())
}

func TestRedisStore_BadValue(t *testing.T) {
	client := &fakeHash{data: map[string]map[string]string{
		"ids": {"AnaLee": "x"},
	}}
	_, err := NewRedisStore(client, "ids").Load(context.Background())
	assert.True(t, gperrors.IsConfigLoad(err))
}

func TestRedisStore_SaveError(t *testing.T) {
	client := &fakeHash{data: map[string]map[string]string{}, setErr: errors.New("READONLY")}
	err := NewRedisStore(client, "ids").Save(context.Background(), sampleMap(t))
	assert.ErrorContains(t, err, "READONLY")
}
