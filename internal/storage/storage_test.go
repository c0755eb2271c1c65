package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/restful-users/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryObjects struct {
	objects      map[string][]byte
	contentTypes map[string]string
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (m *memoryObjects) EnsureBucket(context.Context) error { return nil }

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.contentTypes[key] = contentType
	return nil
}

func (m *memoryObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryObjects) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *memoryObjects) Bucket() string { return "users" }

func TestStorage_PutJSONUsesPrefix(t *testing.T) {
	backend := newMemoryObjects()
	s := NewStorage(backend, "/exports/users/")

	key, err := s.PutJSON(context.Background(), "snapshot.json", map[string]int{"count": 3})
	require.NoError(t, err)

	assert.Equal(t, "exports/users/snapshot.json", key)
	assert.Equal(t, "application/json", backend.contentTypes[key])
	assert.JSONEq(t, `{"count":3}`, string(backend.objects[key]))

	var decoded map[string]int
	require.NoError(t, s.GetJSON(context.Background(), key, &decoded))
	assert.Equal(t, map[string]int{"count": 3}, decoded)

	backend.objects["other/file.json"] = []byte("{}")
	keys, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"exports/users/snapshot.json"}, keys)

	require.NoError(t, s.Delete(context.Background(), key))
	delete(backend.objects, "other/file.json")
	assert.Empty(t, backend.objects)
	assert.Equal(t, "users", s.Bucket())
}

func TestStorage_GetJSONErrors(t *testing.T) {
	backend := newMemoryObjects()
	s := NewStorage(backend, "exports")

	var dst map[string]any
	assert.ErrorIs(t, s.GetJSON(context.Background(), "exports/missing.json", &dst), ErrObjectNotFound)

	backend.objects["exports/broken.json"] = []byte("{")
	assert.ErrorContains(t, s.GetJSON(context.Background(), "exports/broken.json", &dst), "decode exports/broken.json")
}

func TestContentTypeOrDefault(t *testing.T) {
	assert.Equal(t, "application/json", contentTypeOrDefault("application/json"))
	assert.Equal(t, "application/octet-stream", contentTypeOrDefault("  "))
}

func TestStorage_KeyWithoutPrefix(t *testing.T) {
	s := NewStorage(newMemoryObjects(), "")
	assert.Equal(t, "a.json", s.Key("a.json"))
}

func TestNewFromConfig_Validation(t *testing.T) {
	_, err := NewFromConfig(context.Background(), config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)

	_, err = NewFromConfig(context.Background(), config.StorageConfig{Backend: "minio"})
	assert.ErrorContains(t, err, "minio endpoint is required")

	_, err = NewFromConfig(context.Background(), config.StorageConfig{Backend: "gcs"})
	assert.ErrorContains(t, err, "gcs bucket is required")
}
