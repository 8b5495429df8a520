package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "gatekeeper/pkg/domain-errors"
	txcontext "gatekeeper/pkg/platform/tx"
)

const defaultEvaluationTxTimeout = 5 * time.Second

// evaluationPostgresTx runs the evaluation and audit log writes in one
// transaction. The stores pick the transaction up from context, so fn never
// sees sql types.
type evaluationPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newEvaluationPostgresTx(db *sql.DB) *evaluationPostgresTx {
	return &evaluationPostgresTx{db: db}
}

func (t *evaluationPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultEvaluationTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}

	return tx.Commit()
}
