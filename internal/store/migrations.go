package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id             INTEGER PRIMARY KEY,
	user_id        INTEGER NOT NULL,
	instance_id    INTEGER NOT NULL DEFAULT 0,
	is_read        INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1)),
	read_at        DATETIME,
	push_status    TEXT NOT NULL DEFAULT '',
	in_app_visible INTEGER NOT NULL DEFAULT 1 CHECK(in_app_visible IN (0, 1)),
	raw_payload    TEXT NOT NULL DEFAULT '',
	payload        TEXT NOT NULL DEFAULT '{}',
	created_at     DATETIME NOT NULL,
	cached_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id            INTEGER PRIMARY KEY,
	sender_id     INTEGER NOT NULL,
	sender_name   TEXT NOT NULL DEFAULT '',
	receiver_id   INTEGER NOT NULL,
	receiver_name TEXT NOT NULL DEFAULT '',
	message       TEXT NOT NULL,
	sent_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications(user_id);
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_notifications_user_read
	ON notifications(user_id, is_read);

CREATE INDEX IF NOT EXISTS idx_chat_messages_sender ON chat_messages(sender_id);
CREATE INDEX IF NOT EXISTS idx_chat_messages_receiver ON chat_messages(receiver_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
