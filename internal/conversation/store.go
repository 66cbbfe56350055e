package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the pool subset the store needs; pgxmock satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the persistence surface for conversations and their transcripts.
// Tests use an in-memory fake; production uses PostgresStore.
type Store interface {
	// GetOrCreateActive returns the active conversation for the pair, creating
	// one as a single conditional insert when none exists. Active rows older
	// than the window are expired first. The bool reports creation.
	GetOrCreateActive(ctx context.Context, businessID, callerPhone string, now time.Time, window time.Duration) (*Conversation, bool, error)
	// FindRecent returns the newest conversation for the pair created at or
	// after since, regardless of status.
	FindRecent(ctx context.Context, businessID, callerPhone string, since time.Time) (*Conversation, error)
	// InsertInboundIfNew appends an inbound message unless an identical
	// inbound body arrived within the duplicate window. Returns whether the
	// row was inserted and the conversation's message count after the call.
	InsertInboundIfNew(ctx context.Context, conversationID, content, providerMessageID string, now time.Time, dupWindow time.Duration) (bool, int, error)
	// AppendOutbound appends an outbound message and returns the updated
	// message count.
	AppendOutbound(ctx context.Context, conversationID, content, providerMessageID, deliveryStatus string) (int, error)
	// UpdateStatusIfActive transitions the conversation out of active. It is
	// the guard against late completions: false means the conversation
	// already left active and the caller must not apply side effects.
	UpdateStatusIfActive(ctx context.Context, conversationID string, status Status) (bool, error)
	// SetCallerNameIfActive records the caller's name once, only while the
	// conversation is still active.
	SetCallerNameIfActive(ctx context.Context, conversationID, name string) error
	SetIntent(ctx context.Context, conversationID, intent, service string) error
	GetByID(ctx context.Context, id string) (*Conversation, error)
	// GetMessages returns the most recent messages in chronological order.
	GetMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	// UpdateDeliveryStatus records the provider's delivery report against the
	// outbound message it refers to.
	UpdateDeliveryStatus(ctx context.Context, providerMessageID, status string) error
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]Conversation, error)
}

// PostgresStore persists conversations with pgx. The one-active-per-pair
// invariant is a partial unique index, so find-or-create needs no transaction.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgresStore creates the pgx-backed store.
func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

const conversationColumns = `
	id, business_id, caller_phone, COALESCE(caller_name, ''), status,
	COALESCE(intent, ''), COALESCE(service_requested, ''), COALESCE(summary, ''),
	message_count, created_at, last_message_at
`

func (s *PostgresStore) GetOrCreateActive(ctx context.Context, businessID, callerPhone string, now time.Time, window time.Duration) (*Conversation, bool, error) {
	// Active rows past the window no longer count against the invariant.
	_, err := s.pool.Exec(ctx, `
		UPDATE conversations SET status = 'no_response', updated_at = now()
		WHERE business_id = $1 AND caller_phone = $2 AND status = 'active' AND created_at < $3
	`, businessID, callerPhone, now.Add(-window))
	if err != nil {
		return nil, false, fmt.Errorf("conversation: expire stale: %w", err)
	}

	newID := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (id, business_id, caller_phone, status, created_at, last_message_at)
		VALUES ($1, $2, $3, 'active', $4, $4)
		ON CONFLICT (business_id, caller_phone) WHERE status = 'active' DO NOTHING
	`, newID, businessID, callerPhone, now)
	if err != nil {
		return nil, false, fmt.Errorf("conversation: create: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE business_id = $1 AND caller_phone = $2 AND status = 'active'
	`, businessID, callerPhone)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, false, err
	}
	return conv, conv.ID == newID, nil
}

func (s *PostgresStore) FindRecent(ctx context.Context, businessID, callerPhone string, since time.Time) (*Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE business_id = $1 AND caller_phone = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`, businessID, callerPhone, since)
	return scanConversation(row)
}

func (s *PostgresStore) InsertInboundIfNew(ctx context.Context, conversationID, content, providerMessageID string, now time.Time, dupWindow time.Duration) (bool, int, error) {
	// The duplicate check and the insert are one statement; a retransmission
	// racing the original cannot produce two rows.
	row := s.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO conversation_messages (id, conversation_id, direction, content, provider_message_id, created_at)
			SELECT $1, $2, 'inbound', $3, NULLIF($4, ''), $5
			WHERE NOT EXISTS (
				SELECT 1 FROM conversation_messages
				WHERE conversation_id = $2 AND direction = 'inbound' AND content = $3 AND created_at > $6
			)
			RETURNING id
		)
		UPDATE conversations
		SET message_count = message_count + 1, last_message_at = $5, updated_at = now()
		WHERE id = $2 AND EXISTS (SELECT 1 FROM ins)
		RETURNING message_count
	`, uuid.NewString(), conversationID, content, providerMessageID, now, now.Add(-dupWindow))

	var count int
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("conversation: insert inbound: %w", err)
	}
	return true, count, nil
}

func (s *PostgresStore) AppendOutbound(ctx context.Context, conversationID, content, providerMessageID, deliveryStatus string) (int, error) {
	row := s.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO conversation_messages (id, conversation_id, direction, content, provider_message_id, delivery_status)
			VALUES ($1, $2, 'outbound', $3, NULLIF($4, ''), NULLIF($5, ''))
			RETURNING id
		)
		UPDATE conversations
		SET message_count = message_count + 1, last_message_at = now(), updated_at = now()
		WHERE id = $2
		RETURNING message_count
	`, uuid.NewString(), conversationID, content, providerMessageID, deliveryStatus)

	var count int
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrConversationNotFound
		}
		return 0, fmt.Errorf("conversation: append outbound: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) UpdateStatusIfActive(ctx context.Context, conversationID string, status Status) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET status = $1, updated_at = now()
		WHERE id = $2 AND status = 'active'
	`, string(status), conversationID)
	if err != nil {
		return false, fmt.Errorf("conversation: update status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetCallerNameIfActive(ctx context.Context, conversationID, name string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE conversations SET caller_name = $1, updated_at = now()
		WHERE id = $2 AND status = 'active' AND caller_name IS NULL
	`, name, conversationID)
	if err != nil {
		return fmt.Errorf("conversation: set caller name: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetIntent(ctx context.Context, conversationID, intent, service string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET intent = NULLIF($1, ''), service_requested = NULLIF($2, ''), updated_at = now()
		WHERE id = $3
	`, intent, service, conversationID)
	if err != nil {
		return fmt.Errorf("conversation: set intent: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *PostgresStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, direction, content,
		       COALESCE(provider_message_id, ''), COALESCE(delivery_status, ''), created_at
		FROM (
			SELECT * FROM conversation_messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: get messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var direction string
		if err := rows.Scan(&m.ID, &m.ConversationID, &direction, &m.Content,
			&m.ProviderMessageID, &m.DeliveryStatus, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		m.Direction = Direction(direction)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *PostgresStore) UpdateDeliveryStatus(ctx context.Context, providerMessageID, status string) error {
	if providerMessageID == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE conversation_messages SET delivery_status = $1
		WHERE provider_message_id = $2 AND direction = 'outbound'
	`, status, providerMessageID)
	if err != nil {
		return fmt.Errorf("conversation: update delivery status: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByBusiness(ctx context.Context, businessID string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE business_id = $1
		ORDER BY last_message_at DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list by business: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		conv, err := scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	conv, err := scanConversationRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

func scanConversationRow(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var status string
	err := row.Scan(
		&conv.ID, &conv.BusinessID, &conv.CallerPhone, &conv.CallerName, &status,
		&conv.Intent, &conv.ServiceRequested, &conv.Summary,
		&conv.MessageCount, &conv.CreatedAt, &conv.LastMessageAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("conversation: scan conversation: %w", err)
	}
	conv.Status = Status(status)
	return &conv, nil
}
