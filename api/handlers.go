package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/0xmhha/indexdb-go/index"
	"github.com/0xmhha/indexdb-go/internal/codec"
	"github.com/0xmhha/indexdb-go/internal/constants"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// errBadRequest marks malformed request parameters
var errBadRequest = errors.New("bad request")

// VersionResponse represents the version response
type VersionResponse struct {
	Version string `json:"version"`
	Name    string `json:"name"`
}

// AccountsResponse is one page of accounts with at least one transaction.
// Next is passed back as "from" to fetch the following page.
type AccountsResponse struct {
	Accounts []hexutil.Bytes `json:"accounts"`
	Next     hexutil.Bytes   `json:"next,omitempty"`
}

// TransactionsResponse is a window of an account's transactions
type TransactionsResponse struct {
	Account      hexutil.Bytes   `json:"account"`
	Offset       int64           `json:"offset"`
	Total        uint64          `json:"total"`
	Transactions []hexutil.Bytes `json:"transactions"`
}

// CountResponse reports the number of transactions of an account
type CountResponse struct {
	Account hexutil.Bytes `json:"account"`
	Count   uint64        `json:"count"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps index errors onto status codes
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, index.ErrInvalidOffset),
		errors.Is(err, index.ErrInvalidLimit),
		errors.Is(err, index.ErrInvalidKey):
		status = http.StatusBadRequest
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	writeJSON(w, status, ErrorResponse{Error: message})
}

// accountParam decodes the {account} path segment
func accountParam(r *http.Request) ([]byte, error) {
	account, err := codec.ParseBytes(chi.URLParam(r, "account"))
	if err != nil {
		return nil, fmt.Errorf("%w: account: %v", errBadRequest, err)
	}
	return account, nil
}

// limitParam reads ?limit=, defaulting when absent and capping at the page limit
func (s *Server) limitParam(r *http.Request) (int, error) {
	limit := s.config.defaultLimit()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: limit: %v", errBadRequest, err)
		}
		if l < constants.MinPaginationLimit {
			return 0, fmt.Errorf("%w: %d", index.ErrInvalidLimit, l)
		}
		limit = l
	}
	if limit > s.config.PageLimit {
		limit = s.config.PageLimit
	}
	return limit, nil
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: Version,
		Name:    constants.AppName,
	})
}

// handleAccounts lists accounts from ?from= on
func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	from, err := codec.ParseBytes(r.URL.Query().Get("from"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: from: %v", errBadRequest, err))
		return
	}

	limit, err := s.limitParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.txs.ListAccounts(from, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AccountsResponse{
		Accounts: codec.HexList(page.Accounts),
		Next:     page.Next,
	})
}

// handleTransactions returns transactions of an account from ?offset= on
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var offset int64
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: offset: %v", errBadRequest, err))
			return
		}
	}

	limit, err := s.limitParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	txs, err := s.txs.TransactionRange(account, offset, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	total, err := s.txs.NumTransactions(account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, TransactionsResponse{
		Account:      account,
		Offset:       offset,
		Total:        total,
		Transactions: codec.HexList(txs),
	})
}

// handleCount returns the number of transactions of an account
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	count, err := s.txs.NumTransactions(account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CountResponse{
		Account: account,
		Count:   count,
	})
}
