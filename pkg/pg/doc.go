// Package pg bootstraps PostgreSQL access over pgx/v5.
//
// It covers the pieces every store in this module needs: an env-driven
// Config, Connect with retry, goose migrations read from an fs.FS (usually
// an embed.FS shipped next to the queries), a readiness probe, transactions
// carried in context.Context, and classification of driver errors.
//
// # Usage
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations(), slog.Default()); err != nil {
//		return err
//	}
//
// # Transactions
//
// InTx begins a transaction, stores it in the context and commits when the
// callback succeeds. Repositories call Querier(ctx, pool) to run their
// statements inside the caller's transaction when there is one:
//
//	err := pg.InTx(ctx, pool, func(ctx context.Context) error {
//		if err := members.Insert(ctx, m); err != nil {
//			return err
//		}
//		return entitlements.Reserve(ctx, org, entitlement.FeatureTeamMembers, 1)
//	})
//
// Nested InTx calls join the outer transaction.
//
// # Errors
//
// IsNotFoundError, IsDuplicateKeyError, IsForeignKeyViolationError and
// IsCheckViolationError unwrap *pgconn.PgError codes for business logic.
package pg
