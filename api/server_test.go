package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/0xmhha/indexdb-go/index"
	"github.com/0xmhha/indexdb-go/internal/codec"
	"github.com/0xmhha/indexdb-go/internal/testutil"
	"github.com/0xmhha/indexdb-go/storage"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// seedBackend commits n transactions for each of accounts 1..accounts
func seedBackend(t *testing.T, accounts, n int) storage.Backend {
	t.Helper()

	backend := testutil.NewMemoryBackend(t)
	session := testutil.NewSession(t, backend)

	txs, err := index.NewAccountTxIndex(session, nil, nil)
	require.NoError(t, err)
	for a := 1; a <= accounts; a++ {
		for i := 0; i < n; i++ {
			_, err := txs.AddTransaction(testutil.Account(a), uint64(i), testutil.Tx(a, i))
			require.NoError(t, err)
		}
	}
	require.NoError(t, session.Commit())
	return backend
}

func newTestServer(t *testing.T, config *Config, store storage.Reader) *Server {
	t.Helper()
	if config == nil {
		config = DefaultConfig()
	}
	server, err := NewServer(config, testutil.NewTestLogger(t), store, nil)
	require.NoError(t, err)
	return server
}

func get(t *testing.T, server *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestNewServer(t *testing.T) {
	store := testutil.NewMemoryBackend(t)

	tests := []struct {
		name        string
		config      *Config
		store       storage.Reader
		indexConfig *index.AccountTxConfig
		wantErr     bool
	}{
		{"valid default config", DefaultConfig(), store, nil, false},
		{"nil config", nil, store, nil, true},
		{"invalid port", &Config{Host: "localhost", Port: 0}, store, nil, true},
		{"nil store", DefaultConfig(), nil, nil, true},
		{"invalid namespace", DefaultConfig(), store, &index.AccountTxConfig{Namespace: "a/b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(tt.config, zap.NewNop(), tt.store, tt.indexConfig)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewServer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && server == nil {
				t.Error("NewServer() returned nil server")
			}
		})
	}
}

func TestServerHealthEndpoint(t *testing.T) {
	server := newTestServer(t, nil, testutil.NewMemoryBackend(t))

	w := get(t, server, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, index.DefaultNamespace, resp.Namespace)
	_, err := time.Parse(time.RFC3339, resp.Timestamp)
	assert.NoError(t, err)

	require.NotNil(t, resp.Storage)
	assert.Equal(t, StatusHealthy, resp.Storage.Status)
	assert.Equal(t, "memory", resp.Storage.Backend)
}

func TestServerHealthUnhealthyStorage(t *testing.T) {
	backend := testutil.NewMemoryBackend(t)
	server := newTestServer(t, nil, backend)
	require.NoError(t, backend.Close())

	w := get(t, server, "/health")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, StatusUnhealthy, resp.Storage.Status)
	assert.Contains(t, resp.Storage.Message, storage.ErrClosed.Error())
}

func TestServerVersionEndpoint(t *testing.T) {
	server := newTestServer(t, nil, testutil.NewMemoryBackend(t))

	w := get(t, server, "/version")
	require.Equal(t, http.StatusOK, w.Code)

	var resp VersionResponse
	decode(t, w, &resp)
	assert.Equal(t, VersionResponse{Version: Version, Name: "indexdb"}, resp)
}

func TestServerMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, nil, testutil.NewMemoryBackend(t))

	w := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestServerCountEndpoint(t *testing.T) {
	server := newTestServer(t, nil, seedBackend(t, 2, 4))
	account := testutil.Account(1)

	tests := []struct {
		name    string
		segment string
		want    uint64
	}{
		{"raw account", string(account), 4},
		{"hex account", codec.FormatBytes(account), 4},
		{"unknown account", "nobody", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, server, "/api/v1/accounts/"+tt.segment+"/count")
			require.Equal(t, http.StatusOK, w.Code)

			var resp CountResponse
			decode(t, w, &resp)
			assert.Equal(t, tt.want, resp.Count)
		})
	}
}

func TestServerTransactionsEndpoint(t *testing.T) {
	server := newTestServer(t, nil, seedBackend(t, 1, 5))
	account := string(testutil.Account(1))

	w := get(t, server, "/api/v1/accounts/"+account+"/transactions?offset=2&limit=2")
	require.Equal(t, http.StatusOK, w.Code)

	var resp TransactionsResponse
	decode(t, w, &resp)
	assert.Equal(t, hexutil.Bytes(account), resp.Account)
	assert.Equal(t, int64(2), resp.Offset)
	assert.Equal(t, uint64(5), resp.Total)
	assert.Equal(t, []hexutil.Bytes{testutil.Tx(1, 2), testutil.Tx(1, 3)}, resp.Transactions)
}

func TestServerTransactionsPastEnd(t *testing.T) {
	server := newTestServer(t, nil, seedBackend(t, 1, 3))

	w := get(t, server, "/api/v1/accounts/"+string(testutil.Account(1))+"/transactions?offset=7")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"transactions":[]`)
}

func TestServerTransactionsErrors(t *testing.T) {
	server := newTestServer(t, nil, seedBackend(t, 1, 3))
	base := "/api/v1/accounts/" + string(testutil.Account(1)) + "/transactions"

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"negative offset", base + "?offset=-1", index.ErrInvalidOffset.Error()},
		{"malformed offset", base + "?offset=abc", "offset"},
		{"zero limit", base + "?limit=0", index.ErrInvalidLimit.Error()},
		{"malformed limit", base + "?limit=ten", "limit"},
		{"malformed hex account", "/api/v1/accounts/0xabc/transactions", "account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, server, tt.target)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp ErrorResponse
			decode(t, w, &resp)
			assert.Contains(t, resp.Error, tt.want)
		})
	}
}

func TestServerLimitIsCapped(t *testing.T) {
	config := DefaultConfig()
	config.PageLimit = 3
	server := newTestServer(t, config, seedBackend(t, 1, 10))

	w := get(t, server, "/api/v1/accounts/"+string(testutil.Account(1))+"/transactions?limit=50")
	require.Equal(t, http.StatusOK, w.Code)

	var resp TransactionsResponse
	decode(t, w, &resp)
	assert.Len(t, resp.Transactions, 3)
	assert.Equal(t, uint64(10), resp.Total)
}

func TestServerAccountsPagination(t *testing.T) {
	const total = 7
	server := newTestServer(t, nil, seedBackend(t, total, 1))

	var (
		seen  []hexutil.Bytes
		from  string
		pages int
	)
	for {
		target := "/api/v1/accounts?limit=3"
		if from != "" {
			target += "&from=" + url.QueryEscape(from)
		}
		w := get(t, server, target)
		require.Equal(t, http.StatusOK, w.Code)

		var resp AccountsResponse
		decode(t, w, &resp)
		seen = append(seen, resp.Accounts...)
		pages++

		if len(resp.Next) == 0 {
			break
		}
		from = resp.Next.String()
		require.Less(t, pages, total, "pagination does not terminate")
	}

	assert.Equal(t, 3, pages)
	require.Len(t, seen, total)
	for i := 1; i < len(seen); i++ {
		assert.Less(t, string(seen[i-1]), string(seen[i]))
	}
}

func TestServerAccountsOmitsEmptyCursor(t *testing.T) {
	server := newTestServer(t, nil, seedBackend(t, 2, 1))

	w := get(t, server, "/api/v1/accounts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"next"`)
}

func TestServerReadsCommittedStateOnly(t *testing.T) {
	backend := seedBackend(t, 1, 2)
	server := newTestServer(t, nil, backend)

	session := testutil.NewSession(t, backend)
	writer, err := index.NewAccountTxIndex(session, nil, nil)
	require.NoError(t, err)
	_, err = writer.AddTransaction(testutil.Account(1), 2, testutil.Tx(1, 2))
	require.NoError(t, err)

	var resp CountResponse
	decode(t, get(t, server, "/api/v1/accounts/"+string(testutil.Account(1))+"/count"), &resp)
	assert.Equal(t, uint64(2), resp.Count)

	require.NoError(t, session.Commit())

	decode(t, get(t, server, "/api/v1/accounts/"+string(testutil.Account(1))+"/count"), &resp)
	assert.Equal(t, uint64(3), resp.Count)
}

func TestServerGraphQLRoute(t *testing.T) {
	server := newTestServer(t, nil, seedBackend(t, 1, 2))

	body := `{"query":"{ transactionCount(account: \"` + string(testutil.Account(1)) + `\") }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"transactionCount":"2"}}`, w.Body.String())
}

func TestServerGraphQLDisabled(t *testing.T) {
	config := DefaultConfig()
	config.EnableGraphQL = false
	server := newTestServer(t, config, testutil.NewMemoryBackend(t))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerMiddleware(t *testing.T) {
	config := DefaultConfig()
	config.EnableCORS = true
	config.AllowedOrigins = []string{"http://localhost:3000"}
	server := newTestServer(t, config, testutil.NewMemoryBackend(t))

	tests := []struct {
		name       string
		origin     string
		wantHeader string
	}{
		{"allowed origin", "http://localhost:3000", "http://localhost:3000"},
		{"other origin", "http://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/health", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", "GET")
			w := httptest.NewRecorder()

			server.Router().ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantHeader, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestServerRateLimit(t *testing.T) {
	config := DefaultConfig()
	config.EnableRateLimit = true
	config.RateLimitPerSecond = 1
	config.RateLimitBurst = 2
	server := newTestServer(t, config, testutil.NewMemoryBackend(t))

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = get(t, server, "/health").Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestServerGracefulShutdown(t *testing.T) {
	server := newTestServer(t, nil, testutil.NewMemoryBackend(t))

	// Stop without Start shuts down an idle server
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.NoError(t, server.Stop(ctx))
}
