package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNotFound is returned when no submission has the requested confirmation ID.
var ErrNotFound = errors.New("submission not found")

// Submission is one accepted transaction submission.
type Submission struct {
	ConfirmationID string    `json:"confirmation_id"`
	TransactionID  string    `json:"transaction_id"`
	Date           string    `json:"date"`
	Narration      string    `json:"narration"`
	File           string    `json:"file"`
	Offset         int64     `json:"offset"`
	Version        uint64    `json:"version"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Store is the SQLite-backed submission index.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the index at path, creating the file and its schema when missing. WAL
// mode lets readers run while a submission is recorded.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores sub. Recording the same confirmation ID twice is an error.
func (s *Store) Record(ctx context.Context, sub Submission) error {
	query := `
		INSERT INTO submissions (confirmation_id, transaction_id, transaction_date, narration,
			ledger_file, byte_offset, version, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		sub.ConfirmationID,
		sub.TransactionID,
		sub.Date,
		sub.Narration,
		sub.File,
		sub.Offset,
		int64(sub.Version),
		sub.SubmittedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT confirmation_id, transaction_id, transaction_date, narration, ledger_file,
		byte_offset, version, submitted_at
	FROM submissions
`

// Get returns the submission confirmed with id.
func (s *Store) Get(ctx context.Context, id string) (*Submission, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+`WHERE confirmation_id = ?`, id)

	sub, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return sub, nil
}

// Recent returns up to limit submissions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`ORDER BY submitted_at DESC, version DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		sub, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*Submission, error) {
	var sub Submission
	var version int64
	err := row.Scan(
		&sub.ConfirmationID,
		&sub.TransactionID,
		&sub.Date,
		&sub.Narration,
		&sub.File,
		&sub.Offset,
		&version,
		&sub.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Version = uint64(version)
	return &sub, nil
}
