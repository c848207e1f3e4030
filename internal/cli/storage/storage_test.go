package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	_, ok, err := s.Get("id_token")
	require.NoError(t, err)
	assert.False(t, ok, "missing key must report ok=false")

	require.NoError(t, s.Set("id_token", "tok-1"))
	v, ok, err := s.Get("id_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", v)

	require.NoError(t, s.Set("id_token", "tok-2"))
	v, _, _ = s.Get("id_token")
	assert.Equal(t, "tok-2", v)

	require.NoError(t, s.Remove("id_token"))
	_, ok, err = s.Get("id_token")
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing twice is fine
	require.NoError(t, s.Remove("id_token"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	exerciseStore(t, NewFileStore(path))
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	first := NewFileStore(path)
	require.NoError(t, first.Set("demo_uid", "alice@example.com"))
	require.NoError(t, first.Set("demo_email", "alice@example.com"))

	second := NewFileStore(path)
	v, ok, err := second.Get("demo_email")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice@example.com", v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStore_CorruptFileIsStorageError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, _, err := NewFileStore(path).Get("id_token")
	require.Error(t, err)

	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "get", serr.Op)
	assert.Equal(t, "id_token", serr.Key)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	exerciseStore(t, NewKeyringStore(""))
}

func TestKeyringStore_ErrorIsWrapped(t *testing.T) {
	keyring.MockInitWithError(errors.New("keychain locked"))
	defer keyring.MockInit()

	err := NewKeyringStore("").Set("id_token", "x")
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "set", serr.Op)
}

func TestNamespace_IsolatesEnvironments(t *testing.T) {
	base := NewMemoryStore()
	prod := Namespace(base, "prod")
	staging := Namespace(base, "staging")

	require.NoError(t, prod.Set("id_token", "p"))
	require.NoError(t, staging.Set("id_token", "s"))

	v, _, _ := prod.Get("id_token")
	assert.Equal(t, "p", v)
	v, _, _ = staging.Get("id_token")
	assert.Equal(t, "s", v)
	assert.Equal(t, 2, base.Len())

	assert.Same(t, Store(base), Namespace(base, ""))
}
