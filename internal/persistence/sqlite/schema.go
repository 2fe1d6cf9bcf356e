// Package sqlite implements the persistence layer (C2) on top of
// database/sql and the mattn/go-sqlite3 driver, grounded on the
// teacher's SQLTaskService (pkg/agent/task_service_sql.go): JSON-
// encoded columns for nested fields, a single init-schema statement
// run on open, and context-bounded queries throughout.
package sqlite

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	channel_id     TEXT NOT NULL,
	description    TEXT NOT NULL,
	status         TEXT NOT NULL,
	priority       INTEGER NOT NULL,
	parent_task_id TEXT NOT NULL DEFAULT '',
	context_json   TEXT NOT NULL,
	outcome_json   TEXT,
	fail_reason    TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id);
CREATE INDEX IF NOT EXISTS idx_tasks_updated_at ON tasks(updated_at);

CREATE TABLE IF NOT EXISTS thoughts (
	id                TEXT PRIMARY KEY,
	source_task_id    TEXT NOT NULL,
	parent_thought_id TEXT NOT NULL DEFAULT '',
	thought_type      TEXT NOT NULL,
	status            TEXT NOT NULL,
	round_number      INTEGER NOT NULL,
	thought_depth     INTEGER NOT NULL,
	content           TEXT NOT NULL,
	context_json      TEXT NOT NULL,
	final_action_json TEXT,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_thoughts_task ON thoughts(source_task_id);
CREATE INDEX IF NOT EXISTS idx_thoughts_status ON thoughts(status);

CREATE TABLE IF NOT EXISTS graph_nodes (
	id         TEXT PRIMARY KEY,
	node_type  TEXT NOT NULL,
	scope      TEXT NOT NULL,
	attrs_json TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_graph_nodes_type_scope ON graph_nodes(node_type, scope);

CREATE TABLE IF NOT EXISTS graph_edges (
	source       TEXT NOT NULL,
	target       TEXT NOT NULL,
	relationship TEXT NOT NULL,
	scope        TEXT NOT NULL,
	PRIMARY KEY (source, target, relationship)
);
CREATE INDEX IF NOT EXISTS idx_graph_edges_source ON graph_edges(source);

CREATE TABLE IF NOT EXISTS service_correlations (
	id              TEXT PRIMARY KEY,
	service_type    TEXT NOT NULL,
	action          TEXT NOT NULL,
	parent_span_id  TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	error_kind      TEXT NOT NULL DEFAULT '',
	duration_ms     INTEGER NOT NULL,
	request_json    TEXT,
	response_json   TEXT,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_correlations_service ON service_correlations(service_type, action);
`
