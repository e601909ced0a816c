package store

const schema = `
CREATE TABLE IF NOT EXISTS topics (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	parent_id  TEXT REFERENCES topics(id) ON DELETE SET NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	topic_id   TEXT REFERENCES topics(id) ON DELETE SET NULL,
	status     TEXT NOT NULL DEFAULT 'active',
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE INDEX IF NOT EXISTS idx_conversations_topic ON conversations(topic_id);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL CHECK (role IN ('user','assistant','system')),
	content         TEXT NOT NULL,
	model_ref       TEXT,
	timestamp       INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	CHECK (role != 'assistant' OR model_ref IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	content,
	content_rowid = rowid
);

CREATE TRIGGER IF NOT EXISTS messages_fts_insert AFTER INSERT ON messages BEGIN
	INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_delete AFTER DELETE ON messages BEGIN
	DELETE FROM messages_fts WHERE rowid = old.rowid;
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_update AFTER UPDATE ON messages BEGIN
	UPDATE messages_fts SET content = new.content WHERE rowid = new.rowid;
END;

CREATE TRIGGER IF NOT EXISTS conversations_touch_on_message
	AFTER INSERT ON messages
	BEGIN
		UPDATE conversations SET updated_at = strftime('%s','now') WHERE id = NEW.conversation_id;
	END;
`
