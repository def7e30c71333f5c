package graphql

import (
	"fmt"
	"strconv"

	"github.com/0xmhha/indexdb-go/index"
	"github.com/0xmhha/indexdb-go/internal/codec"
	"github.com/0xmhha/indexdb-go/internal/constants"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"
)

// limitArg reads the optional limit argument, capped at the schema's page limit
func (s *Schema) limitArg(p graphql.ResolveParams) (int, error) {
	limit := constants.DefaultPaginationLimit
	if limit > s.pageLimit {
		limit = s.pageLimit
	}
	if l, ok := p.Args["limit"].(int); ok {
		if l < constants.MinPaginationLimit {
			return 0, fmt.Errorf("%w: %d", index.ErrInvalidLimit, l)
		}
		limit = l
	}
	if limit > s.pageLimit {
		limit = s.pageLimit
	}
	return limit, nil
}

// bytesArg decodes a required key argument
func bytesArg(p graphql.ResolveParams, name string) ([]byte, error) {
	raw, ok := p.Args[name].(string)
	if !ok {
		return nil, fmt.Errorf("%s is required", name)
	}
	b, err := codec.ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return b, nil
}

func (s *Schema) resolveAccounts(p graphql.ResolveParams) (interface{}, error) {
	var from []byte
	if raw, ok := p.Args["from"].(string); ok {
		b, err := codec.ParseBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid from: %w", err)
		}
		from = b
	}

	limit, err := s.limitArg(p)
	if err != nil {
		return nil, err
	}

	page, err := s.txs.ListAccounts(from, limit)
	if err != nil {
		s.logger.Error("failed to list accounts", zap.Error(err))
		return nil, err
	}

	accounts := make([]string, len(page.Accounts))
	for i, account := range page.Accounts {
		accounts[i] = codec.FormatBytes(account)
	}

	var next interface{}
	if len(page.Next) > 0 {
		next = codec.FormatBytes(page.Next)
	}

	return map[string]interface{}{
		"accounts": accounts,
		"next":     next,
	}, nil
}

func (s *Schema) resolveTransactions(p graphql.ResolveParams) (interface{}, error) {
	account, err := bytesArg(p, "account")
	if err != nil {
		return nil, err
	}

	offset, _ := p.Args["offset"].(int)
	limit, err := s.limitArg(p)
	if err != nil {
		return nil, err
	}

	txs, err := s.txs.TransactionRange(account, int64(offset), limit)
	if err != nil {
		s.logger.Debug("failed to read transactions",
			zap.Binary("account", account),
			zap.Int("offset", offset),
			zap.Error(err),
		)
		return nil, err
	}

	total, err := s.txs.NumTransactions(account)
	if err != nil {
		return nil, err
	}

	values := make([]string, len(txs))
	for i, tx := range txs {
		values[i] = codec.FormatBytes(tx)
	}

	return map[string]interface{}{
		"account":      codec.FormatBytes(account),
		"offset":       strconv.Itoa(offset),
		"total":        strconv.FormatUint(total, 10),
		"transactions": values,
	}, nil
}

func (s *Schema) resolveTransactionCount(p graphql.ResolveParams) (interface{}, error) {
	account, err := bytesArg(p, "account")
	if err != nil {
		return nil, err
	}

	count, err := s.txs.NumTransactions(account)
	if err != nil {
		s.logger.Error("failed to count transactions", zap.Binary("account", account), zap.Error(err))
		return nil, err
	}
	return strconv.FormatUint(count, 10), nil
}
