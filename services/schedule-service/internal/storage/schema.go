package storage

import (
	"context"
	_ "embed"

	"github.com/carebook/carebook/libs/db"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema applies the idempotent schema. Concurrent replicas serialize on an
// advisory lock.
func EnsureSchema(ctx context.Context, pool *db.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext('schedule-service.schema'))`); err != nil {
		return err
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock(hashtext('schedule-service.schema'))`)
	}()

	_, err = conn.Exec(ctx, schemaSQL)
	return err
}
