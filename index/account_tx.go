package index

import (
	"fmt"

	"github.com/0xmhha/indexdb-go/storage"
	"go.uber.org/zap"
)

// DefaultNamespace is the namespace of the account transaction collection
const DefaultNamespace = "acct_tx"

// PositionPolicy decides what AddTransaction does with the caller's position
type PositionPolicy string

const (
	// PositionsAppend appends at the next position and only logs a differing
	// caller position
	PositionsAppend PositionPolicy = "append"

	// PositionsStrict rejects a caller position other than the next one
	PositionsStrict PositionPolicy = "strict"

	// PositionsOverwrite stores at the caller's position and drops every
	// transaction after it. Positions past the next one are rejected.
	PositionsOverwrite PositionPolicy = "overwrite"
)

// Validate checks p; the empty policy means PositionsAppend
func (p PositionPolicy) Validate() error {
	switch p {
	case "", PositionsAppend, PositionsStrict, PositionsOverwrite:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidPositionPolicy, string(p))
}

// AccountTxConfig configures an AccountTxIndex
type AccountTxConfig struct {
	// Namespace of the transaction collection
	Namespace string

	// Positions is the position policy of AddTransaction
	Positions PositionPolicy
}

// DefaultAccountTxConfig returns the default configuration
func DefaultAccountTxConfig() *AccountTxConfig {
	return &AccountTxConfig{
		Namespace: DefaultNamespace,
		Positions: PositionsAppend,
	}
}

// AccountPage is one page of an account listing.
// Next resumes the listing and is empty once it is exhausted.
type AccountPage struct {
	Accounts [][]byte
	Next     []byte
}

// AccountTxIndex indexes transactions by account
type AccountTxIndex struct {
	txs    *Index
	config *AccountTxConfig
	logger *zap.Logger
}

// NewAccountTxIndex creates an AccountTxIndex over kv.
// A nil config uses DefaultAccountTxConfig.
func NewAccountTxIndex(kv storage.KV, config *AccountTxConfig, logger *zap.Logger) (*AccountTxIndex, error) {
	if config == nil {
		config = DefaultAccountTxConfig()
	}
	if err := config.Positions.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	txs, err := New(kv, config.Namespace, logger.Named("index"))
	if err != nil {
		return nil, err
	}

	return &AccountTxIndex{
		txs:    txs,
		config: config,
		logger: logger,
	}, nil
}

// Index returns the underlying transaction index
func (a *AccountTxIndex) Index() *Index {
	return a.txs
}

// SetMetrics attaches metrics to the underlying index
func (a *AccountTxIndex) SetMetrics(m *Metrics) {
	a.txs.SetMetrics(m)
}

// AddTransaction stores value among the transactions of account according to
// the position policy and returns the position it was stored at
func (a *AccountTxIndex) AddTransaction(account []byte, position uint64, value []byte) (uint64, error) {
	switch a.config.Positions {
	case PositionsOverwrite:
		if err := a.txs.Put(account, position, value); err != nil {
			return 0, err
		}
		return position, nil

	case PositionsStrict:
		next, err := a.txs.NumValues(account)
		if err != nil {
			return 0, err
		}
		if next != position {
			return 0, fmt.Errorf("%w: account %x expects %d, got %d", ErrPositionMismatch, account, next, position)
		}
	}

	stored, err := a.txs.Append(account, value)
	if err != nil {
		return 0, err
	}

	if stored != position {
		a.logger.Debug("transaction position differs from caller position",
			zap.Binary("account", account),
			zap.Uint64("position", position),
			zap.Uint64("stored", stored),
		)
	}
	return stored, nil
}

// GetTransactions returns an iterator over the transactions of account from offset on
func (a *AccountTxIndex) GetTransactions(account []byte, offset int64) (*ValueIterator, error) {
	return a.txs.Get(account, offset)
}

// TransactionRange returns at most limit transactions of account from offset on
func (a *AccountTxIndex) TransactionRange(account []byte, offset int64, limit int) ([][]byte, error) {
	return a.txs.GetRange(account, offset, limit)
}

// NumTransactions returns the number of transactions of account
func (a *AccountTxIndex) NumTransactions(account []byte) (uint64, error) {
	return a.txs.NumValues(account)
}

// DeleteTransactions removes the transactions of account from offset on
func (a *AccountTxIndex) DeleteTransactions(account []byte, offset int64) error {
	return a.txs.Truncate(account, offset)
}

// GetAccounts returns an iterator over accounts with at least one transaction,
// in ascending byte order, starting at the first account >= from
func (a *AccountTxIndex) GetAccounts(from []byte) (*KeyIterator, error) {
	return a.txs.Keys(from)
}

// ListAccounts returns up to limit accounts starting at from
func (a *AccountTxIndex) ListAccounts(from []byte, limit int) (*AccountPage, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	iter, err := a.txs.Keys(from)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	page := &AccountPage{}
	for iter.Next() {
		if len(page.Accounts) == limit {
			// the smallest key after the last one returned
			last := page.Accounts[len(page.Accounts)-1]
			page.Next = append(append([]byte(nil), last...), 0x00)
			break
		}
		page.Accounts = append(page.Accounts, iter.Key())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return page, nil
}
