package testutil

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/0xmhha/indexdb-go/storage"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// NewTestLogger creates a logger that writes through t.Log
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
}

// Account returns a deterministic 40-character account key for n:
// the first 40 hex characters of the Keccak-256 hash of n in decimal
func Account(n int) []byte {
	hash := crypto.Keccak256([]byte(strconv.Itoa(n)))
	return []byte(hex.EncodeToString(hash)[:40])
}

// Tx returns a deterministic transaction value "tx(a,b)"
func Tx(a, b int) []byte {
	return []byte(fmt.Sprintf("tx(%d,%d)", a, b))
}

// NewMemoryBackend creates an in-memory backend closed at test cleanup
func NewMemoryBackend(t *testing.T) storage.Backend {
	t.Helper()
	return NewBackend(t, storage.BackendTypeMemory)
}

// NewBackend creates a backend of backendType in a temp dir, closed at test cleanup
func NewBackend(t *testing.T, backendType storage.BackendType) storage.Backend {
	t.Helper()

	cfg := storage.DefaultBackendConfig(backendType, filepath.Join(t.TempDir(), "db"))
	cfg.Cache = 8
	cfg.WriteBuffer = 4

	backend, err := storage.CreateBackend(cfg, NewTestLogger(t))
	if err != nil {
		t.Fatalf("Failed to create %s backend: %v", backendType, err)
	}
	t.Cleanup(func() { backend.Close() })
	return backend
}

// NewSession opens a session on backend, closed at test cleanup
func NewSession(t *testing.T, backend storage.Backend) storage.Session {
	t.Helper()

	session, err := backend.NewSession()
	if err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// PersistentBackends lists the on-disk backend types
func PersistentBackends() []storage.BackendType {
	return []storage.BackendType{storage.BackendTypePebble, storage.BackendTypeLevelDB}
}

// AllBackends lists every backend type
func AllBackends() []storage.BackendType {
	return append([]storage.BackendType{storage.BackendTypeMemory}, PersistentBackends()...)
}
