package uow

import (
	"context"

	"github.com/jackc/pgx/v5"

	postgresrepo "github.com/kirinyoku/classbook/internal/repository/postgres"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

type Runner interface {
	RunTx(ctx context.Context, opts *pgx.TxOptions, fn func(ctx context.Context, tx postgresrepo.DB) error) error
}

// UoW runs a function against repositories of type R bound to one transaction.
type UoW[R any] struct {
	runner Runner
	bind   func(tx postgresrepo.DB) R
	opts   *pgx.TxOptions
}

// New returns a UoW whose transactions use opts; nil keeps the store default.
func New[R any](runner Runner, opts *pgx.TxOptions, bind func(tx postgresrepo.DB) R) *UoW[R] {
	return &UoW[R]{
		runner: runner,
		bind:   bind,
		opts:   opts,
	}
}

// Do runs fn inside the transaction. After a successful commit,
// it executes all after-commit hooks in registration order.
func (u *UoW[R]) Do(
	ctx context.Context,
	fn func(ctx context.Context, repo R, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.runner.RunTx(ctx, u.opts, func(ctx context.Context, tx postgresrepo.DB) error {
		return fn(ctx, u.bind(tx), func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
