// Package pgstore persists the entitlement engine in PostgreSQL.
//
// Store implements entitlement.OverrideStore, entitlement.AllocationStore,
// entitlement.UsageStore and entitlement.UsageHistoryStore. PlanSource and
// LoadCatalog read the reference data written by ApplySeed.
//
// Every usage mutation takes pg_advisory_xact_lock on the window key
// (organization, feature, period start) before reading the aggregate and
// upserting the counter row, so concurrent consumers of one window are
// serialized while other windows proceed in parallel. When the context
// carries a transaction (see pg.InTx) the store runs inside it, so usage
// changes commit or roll back together with the caller's own writes.
//
// The schema ships as an embedded goose migration, see Migrations.
// It needs PostgreSQL 15 or newer for UNIQUE NULLS NOT DISTINCT.
package pgstore
