package sqlite

// Vertex tables plus one edge table. All identifiers are TEXT bounded
// at 64 bytes (the idgen contract). Timestamps are RFC 3339 TEXT in
// UTC. assertions.valid_to IS NULL means the claim is open; no
// sentinel value is ever written there. The change_events timestamp
// column is named ts, never timestamp.
const schema = `
CREATE TABLE IF NOT EXISTS entities (
    entity_id TEXT PRIMARY KEY CHECK(length(entity_id) <= 64),
    workspace_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    primary_key TEXT NOT NULL,
    display_name TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE(workspace_id, entity_type, primary_key)
);

CREATE TABLE IF NOT EXISTS assertions (
    assertion_id TEXT PRIMARY KEY CHECK(length(assertion_id) <= 64),
    workspace_id TEXT NOT NULL,
    assertion_key TEXT NOT NULL,
    raw_hash TEXT NOT NULL,
    normalized_hash TEXT NOT NULL,
    source_type TEXT NOT NULL,
    source_ref TEXT,
    source_id TEXT,
    import_run_id TEXT,
    recorded_at TEXT NOT NULL,
    valid_from TEXT NOT NULL,
    valid_to TEXT,
    scenario_id TEXT NOT NULL DEFAULT 'base',
    confidence REAL NOT NULL DEFAULT 1.0 CHECK(confidence >= 0.0 AND confidence <= 1.0),
    supersedes TEXT,
    relationship_type TEXT NOT NULL,
    property_key TEXT
);

CREATE INDEX IF NOT EXISTS idx_assertions_key
    ON assertions(workspace_id, assertion_key, scenario_id);
CREATE INDEX IF NOT EXISTS idx_assertions_import_run
    ON assertions(import_run_id);

CREATE TABLE IF NOT EXISTS property_values (
    property_value_id TEXT PRIMARY KEY CHECK(length(property_value_id) <= 64),
    workspace_id TEXT NOT NULL,
    property_key TEXT NOT NULL,
    value TEXT,
    value_type TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS change_events (
    change_event_id TEXT PRIMARY KEY CHECK(length(change_event_id) <= 64),
    workspace_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    description TEXT,
    ts TEXT NOT NULL,
    import_run_id TEXT,
    actor TEXT,
    stats TEXT
);

CREATE TABLE IF NOT EXISTS import_runs (
    import_run_id TEXT PRIMARY KEY CHECK(length(import_run_id) <= 64),
    workspace_id TEXT NOT NULL,
    source_file TEXT,
    spec_name TEXT,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    status TEXT NOT NULL,
    stats TEXT,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_import_runs_workspace
    ON import_runs(workspace_id, started_at DESC);

CREATE TABLE IF NOT EXISTS sources (
    source_id TEXT PRIMARY KEY CHECK(length(source_id) <= 64),
    workspace_id TEXT NOT NULL,
    source_name TEXT NOT NULL,
    source_type TEXT NOT NULL,
    authority_rank INTEGER NOT NULL,
    authority_domains TEXT,
    update_frequency TEXT,
    description TEXT,
    UNIQUE(workspace_id, source_name)
);

CREATE TABLE IF NOT EXISTS edges (
    workspace_id TEXT NOT NULL,
    src_id TEXT NOT NULL,
    edge_type TEXT NOT NULL,
    dst_id TEXT NOT NULL,
    rank INTEGER NOT NULL DEFAULT 0,
    props TEXT,
    PRIMARY KEY (src_id, edge_type, dst_id)
);

CREATE INDEX IF NOT EXISTS idx_edges_dst
    ON edges(dst_id, edge_type);
`
