package database

// Only capture-source cursors are persisted. Pending requests live in memory
// for the lifetime of the process.
const schema = `
CREATE TABLE IF NOT EXISTS source_cursors (
    source TEXT PRIMARY KEY,
    history_id TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
