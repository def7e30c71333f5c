package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/0xmhha/indexdb-go/api"
	"github.com/0xmhha/indexdb-go/index"
	"github.com/0xmhha/indexdb-go/internal/codec"
	"github.com/0xmhha/indexdb-go/internal/constants"
	"github.com/0xmhha/indexdb-go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

func getEnv(c *cli.Context) *environment {
	return c.App.Metadata["env"].(*environment)
}

// requiredBytes decodes a mandatory key or value flag
func requiredBytes(c *cli.Context, name string) ([]byte, error) {
	raw := c.String(name)
	if raw == "" {
		return nil, fmt.Errorf("--%s is required", name)
	}
	b, err := codec.ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return b, nil
}

// format renders b for output, verbatim when raw is set
func format(b []byte, raw bool) string {
	if raw {
		return string(b)
	}
	return codec.FormatBytes(b)
}

func (env *environment) openBackend() (storage.Backend, error) {
	backend, err := storage.CreateBackend(env.config.Database.BackendConfig(), env.log.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", env.config.Database.Backend, err)
	}
	return backend, nil
}

// view runs fn against the committed state of the index
func (env *environment) view(fn func(txs *index.AccountTxIndex) error) error {
	backend, err := env.openBackend()
	if err != nil {
		return err
	}
	defer backend.Close()

	txs, err := index.NewAccountTxIndex(storage.ReadOnly(backend), env.config.Index.AccountTxConfig(), env.log)
	if err != nil {
		return err
	}
	return fn(txs)
}

// update runs fn in a session and commits it when fn succeeds
func (env *environment) update(fn func(txs *index.AccountTxIndex) error) error {
	backend, err := env.openBackend()
	if err != nil {
		return err
	}
	defer backend.Close()

	session, err := backend.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	txs, err := index.NewAccountTxIndex(session, env.config.Index.AccountTxConfig(), env.log)
	if err != nil {
		return err
	}
	if err := fn(txs); err != nil {
		return err
	}

	ops := session.Count()
	if err := session.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	env.log.Debug("session committed", zap.Int("operations", ops))
	return nil
}

// apiConfig builds the server configuration from the api and index sections
func (env *environment) apiConfig(c *cli.Context) *api.Config {
	cfg := env.config.API
	apiConfig := api.DefaultConfig()

	apiConfig.Host = cfg.Host
	apiConfig.Port = cfg.Port
	apiConfig.ReadTimeout = cfg.ReadTimeout
	apiConfig.WriteTimeout = cfg.WriteTimeout
	apiConfig.IdleTimeout = cfg.IdleTimeout
	apiConfig.ShutdownTimeout = cfg.ShutdownTimeout
	apiConfig.EnableGraphQL = cfg.EnableGraphQL
	apiConfig.EnableCORS = cfg.EnableCORS
	apiConfig.AllowedOrigins = cfg.AllowedOrigins
	apiConfig.EnableRateLimit = cfg.EnableRateLimit
	apiConfig.RateLimitPerSecond = cfg.RateLimitPerSecond
	apiConfig.RateLimitBurst = cfg.RateLimitBurst
	apiConfig.PageLimit = env.config.Index.PageLimit

	if host := c.String("host"); host != "" {
		apiConfig.Host = host
	}
	if port := c.Int("port"); port > 0 {
		apiConfig.Port = port
	}
	return apiConfig
}

func runServe(c *cli.Context) error {
	env := getEnv(c)

	backend, err := env.openBackend()
	if err != nil {
		return err
	}
	defer backend.Close()

	server, err := api.NewServer(env.apiConfig(c), env.log.Named("api"), backend, env.config.Index.AccountTxConfig())
	if err != nil {
		return err
	}
	server.SetMetrics(index.NewMetrics(prometheus.DefaultRegisterer, constants.MetricsNamespace, "index"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		env.log.Info("received shutdown signal")
	}

	if err := server.Stop(context.Background()); err != nil {
		return err
	}
	return <-errCh
}

func runAdd(c *cli.Context) error {
	env := getEnv(c)

	account, err := requiredBytes(c, "account")
	if err != nil {
		return err
	}
	value, err := requiredBytes(c, "value")
	if err != nil {
		return err
	}

	return env.update(func(txs *index.AccountTxIndex) error {
		position := c.Uint64("position")
		if !c.IsSet("position") {
			if position, err = txs.NumTransactions(account); err != nil {
				return err
			}
		}

		stored, err := txs.AddTransaction(account, position, value)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.w, "%d\n", stored)
		return nil
	})
}

func runTxs(c *cli.Context) error {
	env := getEnv(c)

	account, err := requiredBytes(c, "account")
	if err != nil {
		return err
	}
	offset := c.Int64("offset")
	limit := c.Int("limit")
	raw := c.Bool("raw")

	return env.view(func(txs *index.AccountTxIndex) error {
		iter, err := txs.GetTransactions(account, offset)
		if err != nil {
			return err
		}
		defer iter.Close()

		for n := 0; (limit <= 0 || n < limit) && iter.Next(); n++ {
			fmt.Fprintf(env.w, "%d\t%s\n", iter.Position(), format(iter.Value(), raw))
		}
		return iter.Err()
	})
}

func runCount(c *cli.Context) error {
	env := getEnv(c)

	account, err := requiredBytes(c, "account")
	if err != nil {
		return err
	}

	return env.view(func(txs *index.AccountTxIndex) error {
		count, err := txs.NumTransactions(account)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.w, "%d\n", count)
		return nil
	})
}

func runTruncate(c *cli.Context) error {
	env := getEnv(c)

	account, err := requiredBytes(c, "account")
	if err != nil {
		return err
	}
	if !c.IsSet("offset") {
		return errors.New("--offset is required")
	}
	offset := c.Int64("offset")

	return env.update(func(txs *index.AccountTxIndex) error {
		before, err := txs.NumTransactions(account)
		if err != nil {
			return err
		}
		if err := txs.DeleteTransactions(account, offset); err != nil {
			return err
		}
		after, err := txs.NumTransactions(account)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.w, "removed %d, remaining %d\n", before-after, after)
		return nil
	})
}

func runAccounts(c *cli.Context) error {
	env := getEnv(c)

	var from []byte
	if raw := c.String("from"); raw != "" {
		b, err := codec.ParseBytes(raw)
		if err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
		from = b
	}
	limit := c.Int("limit")
	raw := c.Bool("raw")

	return env.view(func(txs *index.AccountTxIndex) error {
		page, err := txs.ListAccounts(from, limit)
		if err != nil {
			return err
		}
		for _, account := range page.Accounts {
			fmt.Fprintln(env.w, format(account, raw))
		}
		if len(page.Next) > 0 {
			fmt.Fprintf(env.w, "next: %s\n", codec.FormatBytes(page.Next))
		}
		return nil
	})
}
