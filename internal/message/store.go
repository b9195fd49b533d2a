package message

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // postgres driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store manages conversations and messages in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL using the given DSN and verifies the
// connection.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("message: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("message: postgres connection failed: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle, mainly for tests.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded SQL migrations. Running against an up-to-date
// schema is a no-op.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("message: load migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(s.db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("message: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("message: init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("message: apply migrations: %w", err)
	}
	return nil
}

// CreateMessage persists a direct message, creating the conversation between
// the two participants if it does not exist yet, and returns the stored
// record.
func (s *Store) CreateMessage(ctx context.Context, senderID, receiverID, body string) (Record, error) {
	if err := ValidateBody(body); err != nil {
		return Record{}, err
	}
	if senderID == "" || receiverID == "" {
		return Record{}, fmt.Errorf("message: sender and receiver are required")
	}

	convID, err := s.findOrCreateConversation(ctx, senderID, receiverID)
	if err != nil {
		return Record{}, err
	}

	const query = `
		INSERT INTO messages (conversation_id, sender_id, receiver_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	rec := Record{
		ConversationID: convID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           body,
	}
	err = s.db.QueryRowContext(ctx, query, convID, senderID, receiverID, body).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("message: insert: %w", err)
	}
	return rec, nil
}

// Conversation returns messages between two participants, newest first, with
// offset pagination.
func (s *Store) Conversation(ctx context.Context, a, b string, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	pa, pb := orderPair(a, b)

	const query = `
		SELECT m.id, m.conversation_id, m.sender_id, m.receiver_id, m.body, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.participant_a = $1 AND c.participant_b = $2
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $3 OFFSET $4`

	rows, err := s.db.QueryContext(ctx, query, pa, pb, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("message: query conversation: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.ConversationID, &rec.SenderID, &rec.ReceiverID, &rec.Body, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("message: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message: iterate: %w", err)
	}
	return records, nil
}

// findOrCreateConversation returns the conversation ID for the participant
// pair, inserting a new row if needed. Participants are stored in sorted
// order so each pair maps to exactly one conversation.
func (s *Store) findOrCreateConversation(ctx context.Context, a, b string) (int64, error) {
	pa, pb := orderPair(a, b)

	const query = `
		INSERT INTO conversations (participant_a, participant_b)
		VALUES ($1, $2)
		ON CONFLICT (participant_a, participant_b) DO UPDATE
		SET participant_a = EXCLUDED.participant_a
		RETURNING id`

	var id int64
	if err := s.db.QueryRowContext(ctx, query, pa, pb).Scan(&id); err != nil {
		return 0, fmt.Errorf("message: find or create conversation: %w", err)
	}
	return id, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func orderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
