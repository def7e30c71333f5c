package constants

import "time"

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum request header size (1 MB)
	DefaultMaxHeaderBytes = 1 << 20 // 1 MB

	// DefaultRateLimitPerSecond is the default rate limit (requests per second)
	DefaultRateLimitPerSecond = 1000

	// DefaultRateLimitBurst is the default rate limit burst size
	DefaultRateLimitBurst = 2000

	// DefaultGraphQLPath is the default GraphQL endpoint path
	DefaultGraphQLPath = "/graphql"
)

// Storage Constants
const (
	// DefaultBackend is the default storage backend
	DefaultBackend = "pebble"

	// DefaultDBPath is the default database directory
	DefaultDBPath = "./data/indexdb"

	// DefaultCacheSize is the default cache size in MB
	DefaultCacheSize = 128 // MB

	// DefaultMaxOpenFiles is the default maximum number of open files
	DefaultMaxOpenFiles = 1000

	// DefaultWriteBuffer is the default write buffer size in MB
	DefaultWriteBuffer = 64 // MB
)

// Index Constants
const (
	// DefaultNamespace is the namespace of the account transaction collection
	DefaultNamespace = "acct_tx"
)

// Pagination Constants
const (
	// DefaultPaginationLimit is the default pagination limit
	DefaultPaginationLimit = 10

	// DefaultMaxPaginationLimit is the default maximum pagination limit
	DefaultMaxPaginationLimit = 100

	// MaxPaginationLimitExtended caps configurable page limits
	MaxPaginationLimitExtended = 1000

	// MinPaginationLimit is the minimum pagination limit
	MinPaginationLimit = 1
)

// Metrics Constants
const (
	// MetricsNamespace is the Prometheus namespace of all exported metrics
	MetricsNamespace = "indexdb"
)

// Application
const (
	// AppName is the binary name
	AppName = "indexdb"

	// EnvPrefix prefixes every environment override
	EnvPrefix = "INDEXDB_"
)
