package database

// migrations is an ordered list of SQL migration groups. Each entry is a slice
// of SQL statements that are executed together in a single transaction. The
// version number is the 1-based index into this slice.
var migrations = [][]string{
	// Migration 1: events and their extension attributes
	{
		`CREATE TABLE events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			upstream_id TEXT,
			source_kind TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			excerpt TEXT NOT NULL DEFAULT '',
			event_url TEXT NOT NULL DEFAULT '',
			start_datetime TEXT,
			end_datetime TEXT,
			event_time TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL DEFAULT '',
			organizer TEXT NOT NULL DEFAULT '',
			registered INTEGER NOT NULL DEFAULT 0,
			attended INTEGER NOT NULL DEFAULT 0,
			cancellations INTEGER NOT NULL DEFAULT 0,
			no_shows INTEGER NOT NULL DEFAULT 0,
			cancelled BOOLEAN NOT NULL DEFAULT FALSE,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			event_status TEXT NOT NULL DEFAULT '',
			slug TEXT NOT NULL DEFAULT '',
			domain TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			publish_date TEXT NOT NULL DEFAULT '',
			external_event_id TEXT NOT NULL DEFAULT '',
			external_account_id TEXT NOT NULL DEFAULT '',
			hs_created_at TEXT NOT NULL DEFAULT '',
			hs_updated_at TEXT NOT NULL DEFAULT '',
			last_synced_at INTEGER,
			raw_payload TEXT,
			image_path TEXT NOT NULL DEFAULT '',
			image_source_url TEXT NOT NULL DEFAULT '',
			image_source TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX idx_events_upstream ON events(upstream_id)`,
		`CREATE INDEX idx_events_last_synced ON events(last_synced_at)`,

		`CREATE TABLE event_meta (
			event_id INTEGER NOT NULL,
			meta_key TEXT NOT NULL,
			value TEXT,
			PRIMARY KEY (event_id, meta_key),
			FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
		)`,
	},

	// Migration 2: taxonomies and terms
	{
		`CREATE TABLE taxonomies (
			name TEXT PRIMARY KEY CHECK (length(name) <= 32),
			field TEXT NOT NULL DEFAULT '',
			singular TEXT NOT NULL,
			plural TEXT NOT NULL,
			slug TEXT NOT NULL,
			hierarchical BOOLEAN NOT NULL DEFAULT FALSE,
			core BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE terms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			taxonomy TEXT NOT NULL,
			label TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (taxonomy, label),
			FOREIGN KEY (taxonomy) REFERENCES taxonomies(name)
		)`,

		`CREATE TABLE event_terms (
			event_id INTEGER NOT NULL,
			term_id INTEGER NOT NULL,
			PRIMARY KEY (event_id, term_id),
			FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE,
			FOREIGN KEY (term_id) REFERENCES terms(id)
		)`,
		`CREATE INDEX idx_event_terms_term ON event_terms(term_id)`,
	},

	// Migration 3: sync history
	{
		`CREATE TABLE sync_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			success BOOLEAN NOT NULL,
			sync_type TEXT NOT NULL,
			data_source TEXT NOT NULL,
			created INTEGER NOT NULL DEFAULT 0,
			updated INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			errored INTEGER NOT NULL DEFAULT 0,
			total_fetched INTEGER NOT NULL DEFAULT 0,
			filtered_from INTEGER NOT NULL DEFAULT 0,
			stopped BOOLEAN NOT NULL DEFAULT FALSE,
			error TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE sync_run_errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			message TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES sync_runs(id) ON DELETE CASCADE
		)`,
	},
}
