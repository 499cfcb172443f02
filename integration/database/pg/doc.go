// Package pg manages the PostgreSQL connection for the service: pool
// creation with retry, schema migrations, and health checking.
//
// Connect builds a pgxpool.Pool from Config and verifies connectivity
// with a ping, retrying with exponential backoff so a service restarting
// alongside its database does not give up on the first refused connection.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
// Migrate applies goose migrations from the configured directory;
// MigrateFS does the same from an embedded filesystem, which is what the
// server binary uses. Goose runs over database/sql, so the pool is
// adapted through pgx's stdlib driver for the migration run only.
//
// Healthcheck returns a probe function for readiness endpoints, and the
// Is*Error helpers classify common PostgreSQL failures (no rows, unique
// and foreign key violations, closed transactions) behind stable
// predicates.
//
// WithTx and TxFromContext carry a pgx.Tx through a context so storage
// code can join a caller's transaction without threading it explicitly.
package pg
