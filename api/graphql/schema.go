package graphql

import (
	"github.com/0xmhha/indexdb-go/index"
	"github.com/0xmhha/indexdb-go/internal/constants"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"
)

// Scalar aliases. Counts exceed Int's 32 bits so they travel as decimal
// strings; keys and values travel as 0x hex.
var (
	bigIntType = graphql.String
	bytesType  = graphql.String
)

// Schema holds the GraphQL schema
type Schema struct {
	schema    graphql.Schema
	txs       *index.AccountTxIndex
	pageLimit int
	logger    *zap.Logger
}

// NewSchema creates the query schema over txs.
// pageLimit caps the number of items a single query returns.
func NewSchema(txs *index.AccountTxIndex, pageLimit int, logger *zap.Logger) (*Schema, error) {
	if pageLimit < constants.MinPaginationLimit {
		pageLimit = constants.DefaultMaxPaginationLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Schema{
		txs:       txs,
		pageLimit: pageLimit,
		logger:    logger,
	}

	accountPageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "AccountPage",
		Fields: graphql.Fields{
			"accounts": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(bytesType))),
			},
			"next": &graphql.Field{
				Type:        bytesType,
				Description: "Cursor resuming the listing; null once exhausted",
			},
		},
	})

	transactionPageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TransactionPage",
		Fields: graphql.Fields{
			"account":      &graphql.Field{Type: graphql.NewNonNull(bytesType)},
			"offset":       &graphql.Field{Type: graphql.NewNonNull(bigIntType)},
			"total":        &graphql.Field{Type: graphql.NewNonNull(bigIntType)},
			"transactions": &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(bytesType)))},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"accounts": &graphql.Field{
				Type: graphql.NewNonNull(accountPageType),
				Args: graphql.FieldConfigArgument{
					"from": &graphql.ArgumentConfig{
						Type: bytesType,
					},
					"limit": &graphql.ArgumentConfig{
						Type: graphql.Int,
					},
				},
				Resolve: s.resolveAccounts,
			},
			"transactions": &graphql.Field{
				Type: graphql.NewNonNull(transactionPageType),
				Args: graphql.FieldConfigArgument{
					"account": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(bytesType),
					},
					"offset": &graphql.ArgumentConfig{
						Type:         graphql.Int,
						DefaultValue: 0,
					},
					"limit": &graphql.ArgumentConfig{
						Type: graphql.Int,
					},
				},
				Resolve: s.resolveTransactions,
			},
			"transactionCount": &graphql.Field{
				Type: graphql.NewNonNull(bigIntType),
				Args: graphql.FieldConfigArgument{
					"account": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(bytesType),
					},
				},
				Resolve: s.resolveTransactionCount,
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
	if err != nil {
		return nil, err
	}
	s.schema = schema

	return s, nil
}

// Schema returns the underlying graphql-go schema
func (s *Schema) Schema() graphql.Schema {
	return s.schema
}
