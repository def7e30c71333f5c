package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// backendFactories opens a fresh backend of each registered kind in a temp dir
func backendFactories() map[string]func(t *testing.T) Backend {
	open := func(backendType BackendType) func(t *testing.T) Backend {
		return func(t *testing.T) Backend {
			t.Helper()
			cfg := DefaultBackendConfig(backendType, filepath.Join(t.TempDir(), "db"))
			cfg.Cache = 8
			cfg.WriteBuffer = 4
			backend, err := CreateBackend(cfg, zap.NewNop())
			require.NoError(t, err)
			t.Cleanup(func() { backend.Close() })
			return backend
		}
	}
	return map[string]func(t *testing.T) Backend{
		"pebble":  open(BackendTypePebble),
		"leveldb": open(BackendTypeLevelDB),
		"memory":  open(BackendTypeMemory),
	}
}

// collect drains an iterator into "key=value" strings
func collect(t *testing.T, iter Iterator) []string {
	t.Helper()
	defer iter.Close()

	var out []string
	for ; iter.Valid(); iter.Next() {
		out = append(out, fmt.Sprintf("%s=%s", iter.Key(), iter.Value()))
	}
	require.NoError(t, iter.Error())
	return out
}

func TestBackendConformance(t *testing.T) {
	for name, open := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			t.Run("staged writes visible only through session", func(t *testing.T) {
				backend := open(t)
				session, err := backend.NewSession()
				require.NoError(t, err)
				defer session.Close()

				require.NoError(t, session.Set([]byte("a"), []byte("1")))

				got, err := session.Get([]byte("a"))
				require.NoError(t, err)
				assert.Equal(t, []byte("1"), got)

				_, err = backend.Get([]byte("a"))
				assert.ErrorIs(t, err, ErrNotFound)
				assert.Equal(t, 1, session.Count())

				require.NoError(t, session.Commit())
				assert.Equal(t, 0, session.Count())

				got, err = backend.Get([]byte("a"))
				require.NoError(t, err)
				assert.Equal(t, []byte("1"), got)
			})

			t.Run("discard drops staged writes", func(t *testing.T) {
				backend := open(t)
				session, err := backend.NewSession()
				require.NoError(t, err)
				defer session.Close()

				require.NoError(t, session.Set([]byte("keep"), []byte("v")))
				require.NoError(t, session.Commit())

				require.NoError(t, session.Set([]byte("drop"), []byte("v")))
				require.NoError(t, session.Delete([]byte("keep")))
				require.NoError(t, session.Discard())

				has, err := session.Has([]byte("drop"))
				require.NoError(t, err)
				assert.False(t, has)

				has, err = session.Has([]byte("keep"))
				require.NoError(t, err)
				assert.True(t, has)
			})

			t.Run("delete hides committed key in session", func(t *testing.T) {
				backend := open(t)
				session, err := backend.NewSession()
				require.NoError(t, err)
				defer session.Close()

				require.NoError(t, session.Set([]byte("k"), []byte("v")))
				require.NoError(t, session.Commit())
				require.NoError(t, session.Delete([]byte("k")))

				_, err = session.Get([]byte("k"))
				assert.ErrorIs(t, err, ErrNotFound)

				// still committed until the delete is
				has, err := backend.Has([]byte("k"))
				require.NoError(t, err)
				assert.True(t, has)

				require.NoError(t, session.Commit())
				has, err = backend.Has([]byte("k"))
				require.NoError(t, err)
				assert.False(t, has)
			})

			t.Run("iterator merges staged and committed in order", func(t *testing.T) {
				backend := open(t)
				session, err := backend.NewSession()
				require.NoError(t, err)
				defer session.Close()

				for _, k := range []string{"b", "d", "f"} {
					require.NoError(t, session.Set([]byte(k), []byte("old")))
				}
				require.NoError(t, session.Commit())

				require.NoError(t, session.Set([]byte("a"), []byte("new")))
				require.NoError(t, session.Set([]byte("d"), []byte("new")))
				require.NoError(t, session.Delete([]byte("f")))
				require.NoError(t, session.Set([]byte("e"), []byte("new")))

				iter, err := session.NewIterator(nil, nil)
				require.NoError(t, err)
				assert.Equal(t, []string{"a=new", "b=old", "d=new", "e=new"}, collect(t, iter))

				iter, err = session.NewIterator([]byte("b"), []byte("e"))
				require.NoError(t, err)
				assert.Equal(t, []string{"b=old", "d=new"}, collect(t, iter))

				iter, err = backend.NewIterator(nil, nil)
				require.NoError(t, err)
				assert.Equal(t, []string{"b=old", "d=old", "f=old"}, collect(t, iter))
			})

			t.Run("sessions do not block each other", func(t *testing.T) {
				backend := open(t)
				first, err := backend.NewSession()
				require.NoError(t, err)
				defer first.Close()
				second, err := backend.NewSession()
				require.NoError(t, err)
				defer second.Close()

				require.NoError(t, first.Set([]byte("a"), []byte("1")))

				done := make(chan error, 1)
				go func() {
					if err := second.Set([]byte("b"), []byte("2")); err != nil {
						done <- err
						return
					}
					if _, err := second.Get([]byte("a")); !errors.Is(err, ErrNotFound) {
						done <- fmt.Errorf("read staged key of another session: %v", err)
						return
					}
					iter, err := second.NewIterator(nil, nil)
					if err != nil {
						done <- err
						return
					}
					var keys []string
					for ; iter.Valid(); iter.Next() {
						keys = append(keys, string(iter.Key()))
					}
					iter.Close()
					if len(keys) != 1 || keys[0] != "b" {
						done <- fmt.Errorf("second session sees %v", keys)
						return
					}
					done <- second.Commit()
				}()

				select {
				case err := <-done:
					require.NoError(t, err)
				case <-time.After(5 * time.Second):
					t.Fatal("second session blocked while the first had staged writes")
				}

				require.NoError(t, first.Commit())

				got, err := first.Get([]byte("b"))
				require.NoError(t, err)
				assert.Equal(t, []byte("2"), got)
				got, err = second.Get([]byte("a"))
				require.NoError(t, err)
				assert.Equal(t, []byte("1"), got)

				iter, err := backend.NewIterator(nil, nil)
				require.NoError(t, err)
				assert.Equal(t, []string{"a=1", "b=2"}, collect(t, iter))
			})

			t.Run("empty range", func(t *testing.T) {
				backend := open(t)
				iter, err := backend.NewIterator([]byte("x"), []byte("y"))
				require.NoError(t, err)
				assert.Empty(t, collect(t, iter))
			})

			t.Run("closed backend", func(t *testing.T) {
				backend := open(t)
				require.NoError(t, backend.Close())
				require.NoError(t, backend.Close())

				_, err := backend.Get([]byte("a"))
				assert.ErrorIs(t, err, ErrClosed)
				_, err = backend.NewSession()
				assert.ErrorIs(t, err, ErrClosed)
			})
		})
	}
}

func TestReadOnlyKV(t *testing.T) {
	backend := NewMemoryBackend(nil)
	session, err := backend.NewSession()
	require.NoError(t, err)
	require.NoError(t, session.Set([]byte("a"), []byte("1")))
	require.NoError(t, session.Commit())

	kv := ReadOnly(backend)

	got, err := kv.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	assert.ErrorIs(t, kv.Set([]byte("a"), []byte("2")), ErrReadOnly)
	assert.ErrorIs(t, kv.Delete([]byte("a")), ErrReadOnly)
}

func TestReadOnlyBackendRejectsSessions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	for _, backendType := range []BackendType{BackendTypePebble, BackendTypeLevelDB} {
		t.Run(string(backendType), func(t *testing.T) {
			path := filepath.Join(dir, string(backendType))

			// create the database first
			rw, err := CreateBackend(DefaultBackendConfig(backendType, path), nil)
			require.NoError(t, err)
			require.NoError(t, rw.Close())

			cfg := DefaultBackendConfig(backendType, path)
			cfg.ReadOnly = true
			ro, err := CreateBackend(cfg, nil)
			require.NoError(t, err)
			defer ro.Close()

			_, err = ro.NewSession()
			assert.True(t, errors.Is(err, ErrReadOnly), "expected ErrReadOnly, got %v", err)
		})
	}
}

func TestBackendConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *BackendConfig
		wantErr bool
	}{
		{
			"valid pebble config",
			DefaultBackendConfig(BackendTypePebble, "/tmp/test"),
			false,
		},
		{
			"memory without path",
			DefaultBackendConfig(BackendTypeMemory, ""),
			false,
		},
		{
			"empty type",
			&BackendConfig{Path: "/tmp"},
			true,
		},
		{
			"empty path",
			&BackendConfig{Type: BackendTypePebble},
			true,
		},
		{
			"negative cache",
			&BackendConfig{Type: BackendTypePebble, Path: "/tmp", Cache: -1},
			true,
		},
		{
			"negative max open files",
			&BackendConfig{Type: BackendTypeLevelDB, Path: "/tmp", MaxOpenFiles: -1},
			true,
		},
		{
			"negative write buffer",
			&BackendConfig{Type: BackendTypeLevelDB, Path: "/tmp", WriteBuffer: -1},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestBackendRegistry(t *testing.T) {
	for _, backendType := range []BackendType{BackendTypeLevelDB, BackendTypeMemory, BackendTypePebble} {
		if !HasBackend(backendType) {
			t.Errorf("backend %s not registered", backendType)
		}
	}
	assert.Equal(t, []BackendType{BackendTypeLevelDB, BackendTypeMemory, BackendTypePebble}, SupportedBackends())

	registry := NewBackendRegistry()
	factory := func(config *BackendConfig, logger *zap.Logger) (Backend, error) {
		return NewMemoryBackend(logger), nil
	}
	require.NoError(t, registry.Register(BackendTypeMemory, factory, &BackendMetadata{Name: "Memory"}))
	assert.Error(t, registry.Register(BackendTypeMemory, factory, nil))

	meta, ok := registry.GetMetadata(BackendTypeMemory)
	require.True(t, ok)
	assert.Equal(t, "Memory", meta.Name)

	_, err := registry.Create(DefaultBackendConfig(BackendTypePebble, "/tmp/x"), nil)
	assert.Error(t, err, "unregistered type must fail")

	_, err = registry.Create(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	backend, err := registry.Create(DefaultBackendConfig(BackendTypeMemory, ""), nil)
	require.NoError(t, err)
	assert.Equal(t, BackendTypeMemory, backend.Type())
	require.NoError(t, backend.Close())
}
