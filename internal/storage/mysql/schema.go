package mysql

// The DDL mirrors the sqlite schema with MySQL types: VARCHAR(64)
// identifiers (the idgen contract), DATETIME(6) timestamps in UTC,
// JSON for the sources domain list. assertions.valid_to IS NULL means
// the claim is open.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		entity_id VARCHAR(64) PRIMARY KEY,
		workspace_id VARCHAR(64) NOT NULL,
		entity_type VARCHAR(128) NOT NULL,
		primary_key VARCHAR(512) NOT NULL,
		display_name TEXT,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_entities_natural (workspace_id, entity_type, primary_key(255))
	)`,
	`CREATE TABLE IF NOT EXISTS assertions (
		assertion_id VARCHAR(64) PRIMARY KEY,
		workspace_id VARCHAR(64) NOT NULL,
		assertion_key VARCHAR(768) NOT NULL,
		raw_hash CHAR(64) NOT NULL,
		normalized_hash CHAR(64) NOT NULL,
		source_type VARCHAR(32) NOT NULL,
		source_ref TEXT,
		source_id VARCHAR(64),
		import_run_id VARCHAR(64),
		recorded_at DATETIME(6) NOT NULL,
		valid_from DATETIME(6) NOT NULL,
		valid_to DATETIME(6) NULL,
		scenario_id VARCHAR(128) NOT NULL DEFAULT 'base',
		confidence DOUBLE NOT NULL DEFAULT 1.0,
		supersedes VARCHAR(64),
		relationship_type VARCHAR(128) NOT NULL,
		property_key VARCHAR(256),
		KEY idx_assertions_key (workspace_id, assertion_key(255), scenario_id),
		KEY idx_assertions_import_run (import_run_id),
		CONSTRAINT chk_confidence CHECK (confidence >= 0.0 AND confidence <= 1.0)
	)`,
	`CREATE TABLE IF NOT EXISTS property_values (
		property_value_id VARCHAR(64) PRIMARY KEY,
		workspace_id VARCHAR(64) NOT NULL,
		property_key VARCHAR(256) NOT NULL,
		value TEXT,
		value_type VARCHAR(32) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS change_events (
		change_event_id VARCHAR(64) PRIMARY KEY,
		workspace_id VARCHAR(64) NOT NULL,
		event_type VARCHAR(64) NOT NULL,
		description TEXT,
		ts DATETIME(6) NOT NULL,
		import_run_id VARCHAR(64),
		actor VARCHAR(128),
		stats TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS import_runs (
		import_run_id VARCHAR(64) PRIMARY KEY,
		workspace_id VARCHAR(64) NOT NULL,
		source_file TEXT,
		spec_name VARCHAR(256),
		started_at DATETIME(6) NOT NULL,
		completed_at DATETIME(6) NULL,
		status VARCHAR(32) NOT NULL,
		stats TEXT,
		error_message TEXT,
		KEY idx_import_runs_workspace (workspace_id, started_at DESC)
	)`,
	`CREATE TABLE IF NOT EXISTS sources (
		source_id VARCHAR(64) PRIMARY KEY,
		workspace_id VARCHAR(64) NOT NULL,
		source_name VARCHAR(256) NOT NULL,
		source_type VARCHAR(32) NOT NULL,
		authority_rank INT NOT NULL,
		authority_domains JSON,
		update_frequency VARCHAR(64),
		description TEXT,
		UNIQUE KEY uq_sources_name (workspace_id, source_name)
	)`,
	`CREATE TABLE IF NOT EXISTS edges (
		workspace_id VARCHAR(64) NOT NULL,
		src_id VARCHAR(64) NOT NULL,
		edge_type VARCHAR(64) NOT NULL,
		dst_id VARCHAR(64) NOT NULL,
		` + "`rank`" + ` INT NOT NULL DEFAULT 0,
		props TEXT,
		PRIMARY KEY (src_id, edge_type, dst_id),
		KEY idx_edges_dst (dst_id, edge_type)
	)`,
}
