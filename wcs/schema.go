// Package wcs implements the wide-column sink: a Processor that persists
// market, position, L3 orderbook and exchange balance envelopes to
// Scylla/Cassandra (other message types are not stored) with schemas supporting both
// (market_id, subaccount_id)-scoped and market_id-scoped queries, grounded
// on the original scylladb_consumer module's table layout and inline
// liquidation recompute.
package wcs

import "github.com/gocql/gocql"

// ddlStatements creates every table this sink writes to, if absent. All
// tables cluster by block_height DESC (or timestamp DESC for orderbook
// snapshots) per spec.md §4.7.
var ddlStatements = []string{
	`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': 1}`,
	`CREATE TABLE IF NOT EXISTS %s.markets (
		market_id text,
		block_height bigint,
		ticker text,
		mark_price text,
		maintenance_margin_ratio text,
		cumulative_funding text,
		status text,
		PRIMARY KEY (market_id, block_height)
	) WITH CLUSTERING ORDER BY (block_height DESC)`,
	`CREATE TABLE IF NOT EXISTS %s.positions (
		market_id text,
		subaccount_id text,
		block_height bigint,
		is_long boolean,
		quantity text,
		entry_price text,
		margin text,
		cumulative_funding_entry text,
		liquidation_price text,
		is_liquidatable boolean,
		PRIMARY KEY ((market_id, subaccount_id), block_height)
	) WITH CLUSTERING ORDER BY (block_height DESC)`,
	`CREATE TABLE IF NOT EXISTS %s.market_positions (
		market_id text,
		subaccount_id text,
		block_height bigint,
		is_long boolean,
		quantity text,
		entry_price text,
		margin text,
		cumulative_funding_entry text,
		liquidation_price text,
		is_liquidatable boolean,
		PRIMARY KEY (market_id, subaccount_id, block_height)
	) WITH CLUSTERING ORDER BY (subaccount_id ASC, block_height DESC)`,
	`CREATE TABLE IF NOT EXISTS %s.positions_by_subaccount (
		subaccount_id text,
		block_height bigint,
		market_id text,
		liquidation_price text,
		is_liquidatable boolean,
		PRIMARY KEY (subaccount_id, block_height, market_id)
	) WITH CLUSTERING ORDER BY (block_height DESC, market_id ASC)`,
	`CREATE TABLE IF NOT EXISTS %s.exchange_balances (
		subaccount_id text,
		denom text,
		block_height bigint,
		available_balance text,
		total_balance text,
		PRIMARY KEY ((subaccount_id, denom), block_height)
	) WITH CLUSTERING ORDER BY (block_height DESC)`,
	`CREATE TABLE IF NOT EXISTS %s.exchange_balances_by_subaccount (
		subaccount_id text,
		block_height bigint,
		denom text,
		available_balance text,
		total_balance text,
		PRIMARY KEY (subaccount_id, block_height, denom)
	) WITH CLUSTERING ORDER BY (block_height DESC, denom ASC)`,
	`CREATE TABLE IF NOT EXISTS %s.orderbook_snapshots (
		market_id text,
		timestamp bigint,
		orderbook_id uuid,
		PRIMARY KEY (market_id, timestamp)
	) WITH CLUSTERING ORDER BY (timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS %s.orderbook_orders (
		orderbook_id uuid,
		is_bid boolean,
		price text,
		order_hash text,
		quantity text,
		subaccount_id text,
		PRIMARY KEY (orderbook_id, is_bid, price, order_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS %s.liquidatable_positions (
		market_id text,
		subaccount_id text,
		is_long boolean,
		quantity text,
		entry_price text,
		margin text,
		liquidation_price text,
		mark_price text,
		PRIMARY KEY (market_id, subaccount_id)
	)`,
	`CREATE TABLE IF NOT EXISTS %s.market_statistics (
		market_id text,
		date text,
		hour int,
		open text,
		high text,
		low text,
		close text,
		volume text,
		PRIMARY KEY ((market_id, date), hour)
	) WITH CLUSTERING ORDER BY (hour DESC)`,
}

func initializeSchema(session *gocql.Session, keyspace string) error {
	for _, stmt := range ddlStatements {
		if err := session.Query(sprintfKeyspace(stmt, keyspace)).Exec(); err != nil {
			return err
		}
	}
	return nil
}

func sprintfKeyspace(stmt, keyspace string) string {
	out := make([]byte, 0, len(stmt))
	for i := 0; i < len(stmt); i++ {
		if stmt[i] == '%' && i+1 < len(stmt) && stmt[i+1] == 's' {
			out = append(out, keyspace...)
			i++
			continue
		}
		out = append(out, stmt[i])
	}
	return string(out)
}
