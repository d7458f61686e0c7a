package repository

type migration struct {
	version int
	sql     string
}

// 版本号必须从 1 开始连续递增
var sqliteMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	message_id         TEXT PRIMARY KEY,
	thread_id          TEXT NOT NULL,
	subject            TEXT NOT NULL DEFAULT '',
	sender             TEXT NOT NULL DEFAULT '',
	recipients         TEXT NOT NULL DEFAULT '',
	sent_at            DATETIME,
	snippet            TEXT NOT NULL DEFAULT '',
	label_ids          TEXT NOT NULL DEFAULT '[]',
	body_text          TEXT NOT NULL DEFAULT '',
	body_html          TEXT NOT NULL DEFAULT '',
	attachments        TEXT NOT NULL DEFAULT '[]',
	generated_category TEXT NOT NULL DEFAULT '',
	user_category      TEXT NOT NULL DEFAULT '',
	summary            TEXT NOT NULL DEFAULT '',
	ai_output_text     TEXT NOT NULL DEFAULT '',
	delivered_to       TEXT,
	cc                 TEXT,
	bcc                TEXT,
	draft_id           TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_thread_id ON messages (thread_id);

CREATE TABLE IF NOT EXISTS threads (
	thread_id          TEXT PRIMARY KEY,
	summary            TEXT NOT NULL DEFAULT '',
	generated_category TEXT NOT NULL DEFAULT '',
	user_category      TEXT NOT NULL DEFAULT '',
	delivered_to       TEXT,
	created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS accounts (
	email         TEXT PRIMARY KEY,
	access_token  TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	token_expiry  DATETIME,
	categories    TEXT NOT NULL DEFAULT '[]',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
