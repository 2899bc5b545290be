// Package audit keeps an index of accepted submissions in SQLite.
//
// The ledger file stays the source of truth; the index only maps the confirmation ID
// handed to a client back to the transaction it confirmed and where it was appended.
package audit

// Schema creates the submission index.
const Schema = `
CREATE TABLE IF NOT EXISTS submissions (
    confirmation_id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    transaction_date TEXT NOT NULL,   -- YYYY-MM-DD
    narration TEXT NOT NULL,
    ledger_file TEXT NOT NULL,
    byte_offset INTEGER NOT NULL,     -- offset of the transaction text in ledger_file
    version INTEGER NOT NULL,         -- ledger snapshot version it produced
    submitted_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_transaction
    ON submissions(transaction_id);

CREATE INDEX IF NOT EXISTS idx_submissions_submitted
    ON submissions(submitted_at);
`
