package catalog

// The three documented table shapes, one per Kind. Column sets follow §3 of
// the engine specification exactly; see the per-entity accessor files
// (setup.go, section.go, table.go, ...) for the Go-side records.

var createStatements = map[Kind][]string{
	KindSource: sourceSchema,
	KindTarget: targetSchema,
	KindFilter: filterSchema,
}

var dropStatements = map[Kind][]string{
	KindSource: sourceDrop,
	KindTarget: targetDrop,
	KindFilter: filterDrop,
}

// sourceSchema holds everything scoped to a single migration run: the
// setup singleton, section lifecycle, the full source object inventory,
// partitions/checksums, worker coordination (process/summary), and the CDC
// control surface (sentinel, timeline history).
var sourceSchema = []string{
	`CREATE TABLE IF NOT EXISTS setup (
		id                INTEGER PRIMARY KEY CHECK (id = 1),
		run_id            TEXT NOT NULL,
		source_dsn        TEXT NOT NULL,
		target_dsn        TEXT NOT NULL,
		snapshot_id       TEXT NOT NULL DEFAULT '',
		split_threshold   INTEGER NOT NULL,
		split_max_parts   INTEGER NOT NULL,
		filter_spec       TEXT NOT NULL,
		plugin_name       TEXT NOT NULL DEFAULT '',
		slot_name         TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS section (
		name        TEXT PRIMARY KEY,
		fetched     INTEGER NOT NULL DEFAULT 0,
		start_epoch INTEGER,
		done_epoch  INTEGER,
		duration_ms INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS s_table (
		oid              INTEGER PRIMARY KEY,
		qname            TEXT NOT NULL UNIQUE,
		nspname          TEXT NOT NULL,
		relname          TEXT NOT NULL,
		amname           TEXT NOT NULL DEFAULT '',
		restore_list_name TEXT NOT NULL DEFAULT '',
		rel_pages        INTEGER NOT NULL DEFAULT 0,
		rel_tuples       REAL NOT NULL DEFAULT 0,
		exclude_data     INTEGER NOT NULL DEFAULT 0,
		part_key         TEXT NOT NULL DEFAULT '',
		bytes            INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS s_attr (
		table_oid     INTEGER NOT NULL REFERENCES s_table(oid),
		attnum        INTEGER NOT NULL,
		atttypid      INTEGER NOT NULL,
		attname       TEXT NOT NULL,
		is_pkey       INTEGER NOT NULL DEFAULT 0,
		is_generated  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (table_oid, attnum)
	)`,
	`CREATE TABLE IF NOT EXISTS s_table_part (
		table_oid  INTEGER NOT NULL REFERENCES s_table(oid),
		partnum    INTEGER NOT NULL,
		partcount  INTEGER NOT NULL,
		min        TEXT NOT NULL,
		max        TEXT NOT NULL,
		row_count  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (table_oid, partnum)
	)`,
	`CREATE TABLE IF NOT EXISTS s_checksum (
		table_oid        INTEGER PRIMARY KEY REFERENCES s_table(oid),
		source_row_count INTEGER NOT NULL,
		source_checksum  TEXT NOT NULL,
		target_row_count INTEGER NOT NULL,
		target_checksum  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS s_index (
		oid           INTEGER PRIMARY KEY,
		qname         TEXT NOT NULL UNIQUE,
		table_oid     INTEGER NOT NULL REFERENCES s_table(oid),
		is_primary    INTEGER NOT NULL DEFAULT 0,
		is_unique     INTEGER NOT NULL DEFAULT 0,
		columns       TEXT NOT NULL DEFAULT '',
		definition    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS s_constraint (
		oid            INTEGER PRIMARY KEY,
		name           TEXT NOT NULL,
		index_oid      INTEGER REFERENCES s_index(oid),
		is_deferrable  INTEGER NOT NULL DEFAULT 0,
		is_deferred    INTEGER NOT NULL DEFAULT 0,
		definition     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS s_sequence (
		oid          INTEGER PRIMARY KEY,
		column_oid   INTEGER,
		qname        TEXT NOT NULL UNIQUE,
		last_value   INTEGER NOT NULL DEFAULT 0,
		is_called    INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS s_depend (
		nspname   TEXT NOT NULL,
		relname   TEXT NOT NULL,
		refclassid INTEGER NOT NULL,
		refobjid  INTEGER NOT NULL,
		classid   INTEGER NOT NULL,
		objid     INTEGER NOT NULL,
		deptype   TEXT NOT NULL,
		type      TEXT NOT NULL,
		identity  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS process (
		pid        INTEGER PRIMARY KEY,
		role       TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		table_oid  INTEGER,
		partnum    INTEGER,
		index_oid  INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS summary (
		table_oid   INTEGER,
		partnum     INTEGER,
		index_oid   INTEGER,
		pid         INTEGER NOT NULL,
		start_epoch INTEGER NOT NULL,
		done_epoch  INTEGER,
		duration_ms INTEGER,
		bytes       INTEGER NOT NULL DEFAULT 0,
		command     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS summary_table_part ON summary(table_oid, partnum) WHERE index_oid IS NULL`,
	`CREATE TABLE IF NOT EXISTS sentinel (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		startpos    TEXT NOT NULL DEFAULT '0/0',
		endpos      TEXT NOT NULL DEFAULT '0/0',
		apply       INTEGER NOT NULL DEFAULT 0,
		write_lsn   TEXT NOT NULL DEFAULT '0/0',
		flush_lsn   TEXT NOT NULL DEFAULT '0/0',
		replay_lsn  TEXT NOT NULL DEFAULT '0/0'
	)`,
	`CREATE TABLE IF NOT EXISTS timeline_history (
		tli       INTEGER PRIMARY KEY,
		start_lsn TEXT NOT NULL,
		end_lsn   TEXT NOT NULL
	)`,
}

var sourceDrop = []string{
	`DROP TABLE IF EXISTS timeline_history`,
	`DROP TABLE IF EXISTS sentinel`,
	`DROP TABLE IF EXISTS summary`,
	`DROP TABLE IF EXISTS process`,
	`DROP TABLE IF EXISTS s_depend`,
	`DROP TABLE IF EXISTS s_sequence`,
	`DROP TABLE IF EXISTS s_constraint`,
	`DROP TABLE IF EXISTS s_index`,
	`DROP TABLE IF EXISTS s_checksum`,
	`DROP TABLE IF EXISTS s_table_part`,
	`DROP TABLE IF EXISTS s_attr`,
	`DROP TABLE IF EXISTS s_table`,
	`DROP TABLE IF EXISTS section`,
	`DROP TABLE IF EXISTS setup`,
}

// targetSchema is the table shape for the subset of the object inventory
// that already exists on the target. The target catalog file is created
// with these tables, but no code in this repository populates or queries
// them.
var targetSchema = []string{
	`CREATE TABLE IF NOT EXISTS s_table (
		oid    INTEGER PRIMARY KEY,
		qname  TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS s_index (
		oid    INTEGER PRIMARY KEY,
		qname  TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS s_constraint (
		oid    INTEGER PRIMARY KEY,
		name   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS s_sequence (
		oid    INTEGER PRIMARY KEY,
		qname  TEXT NOT NULL UNIQUE
	)`,
}

var targetDrop = []string{
	`DROP TABLE IF EXISTS s_sequence`,
	`DROP TABLE IF EXISTS s_constraint`,
	`DROP TABLE IF EXISTS s_index`,
	`DROP TABLE IF EXISTS s_table`,
}

// filterSchema holds the single additive, write-once filter_entry table.
var filterSchema = []string{
	`CREATE TABLE IF NOT EXISTS filter_entry (
		oid               INTEGER NOT NULL DEFAULT 0,
		restore_list_name TEXT NOT NULL DEFAULT '',
		kind              TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS filter_entry_oid ON filter_entry(oid) WHERE oid > 0`,
}

var filterDrop = []string{
	`DROP TABLE IF EXISTS filter_entry`,
}
