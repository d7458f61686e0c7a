package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	contractmq "mailsense/contracts/mq"
	"mailsense/internal/model"
	"mailsense/pkg/outbox"
	"mailsense/pkg/trace"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS messages (
	message_id         TEXT PRIMARY KEY,
	thread_id          TEXT        NOT NULL,
	subject            TEXT        NOT NULL DEFAULT '',
	sender             TEXT        NOT NULL DEFAULT '',
	recipients         TEXT        NOT NULL DEFAULT '',
	sent_at            TIMESTAMPTZ,
	snippet            TEXT        NOT NULL DEFAULT '',
	label_ids          TEXT[]      NOT NULL DEFAULT '{}',
	body_text          TEXT        NOT NULL DEFAULT '',
	body_html          TEXT        NOT NULL DEFAULT '',
	attachments        JSONB       NOT NULL DEFAULT '[]',
	generated_category TEXT        NOT NULL DEFAULT '',
	user_category      TEXT        NOT NULL DEFAULT '',
	summary            TEXT        NOT NULL DEFAULT '',
	ai_output_text     TEXT        NOT NULL DEFAULT '',
	delivered_to       TEXT,
	cc                 TEXT,
	bcc                TEXT,
	draft_id           TEXT        NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_messages_thread_id ON messages (thread_id);

CREATE TABLE IF NOT EXISTS threads (
	thread_id          TEXT PRIMARY KEY,
	summary            TEXT        NOT NULL DEFAULT '',
	generated_category TEXT        NOT NULL DEFAULT '',
	user_category      TEXT        NOT NULL DEFAULT '',
	delivered_to       TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS accounts (
	email         TEXT PRIMARY KEY,
	access_token  TEXT        NOT NULL DEFAULT '',
	refresh_token TEXT        NOT NULL DEFAULT '',
	token_expiry  TIMESTAMPTZ,
	categories    JSONB       NOT NULL DEFAULT '[]',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const messageColumns = `message_id, thread_id, subject, sender, recipients, sent_at, snippet, label_ids,
	body_text, body_html, attachments, generated_category, user_category, summary, ai_output_text,
	delivered_to, cc, bcc, draft_id, created_at, updated_at`

// PostgresStore 生产环境存储；写入 message 时在同一事务里写 outbox 事件
type PostgresStore struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewPostgresStore(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, outbox: outboxRepo, logger: logger}
}

// Migrate creates the tables when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema+outbox.Schema); err != nil {
		return fmt.Errorf("failed to migrate postgres schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) MessageExists(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE message_id = $1)`, messageID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check message %s: %w", messageID, err)
	}
	return exists, nil
}

func (s *PostgresStore) FindMessage(ctx context.Context, messageID string) (*model.Message, error) {
	var (
		m           model.Message
		attachments []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE message_id = $1`, messageID,
	).Scan(
		&m.MessageID, &m.ThreadID, &m.Subject, &m.From, &m.To, &m.Date, &m.Snippet, &m.LabelIDs,
		&m.BodyText, &m.BodyHTML, &attachments, &m.GeneratedCategory, &m.UserCategory, &m.Summary, &m.AIOutputText,
		&m.DeliveredTo, &m.Cc, &m.Bcc, &m.DraftID, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	if err := unmarshalJSON("attachments", attachments, &m.Attachments); err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMessage 写入 message 与 email.processed outbox 事件；message_id 冲突返回 ErrDuplicateMessage
func (s *PostgresStore) InsertMessage(ctx context.Context, m *model.Message) error {
	stampMessage(m)
	attachments, err := marshalJSON("attachments", m.Attachments)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (message_id) DO NOTHING
	`,
		m.MessageID, m.ThreadID, m.Subject, m.From, m.To, m.Date, m.Snippet, m.LabelIDs,
		m.BodyText, m.BodyHTML, attachments, m.GeneratedCategory, m.UserCategory, m.Summary, m.AIOutputText,
		m.DeliveredTo, m.Cc, m.Bcc, m.DraftID, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message %s: %w", m.MessageID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateMessage
	}

	if s.outbox != nil {
		event := processedEvent(m, trace.FromContext(ctx))
		if err := s.outbox.InsertEventInTx(ctx, tx, aggregateMessage, m.MessageID, contractmq.RoutingKeyEmailProcessed, event); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit message %s: %w", m.MessageID, err)
	}
	return nil
}

func (s *PostgresStore) FindThread(ctx context.Context, threadID string) (*model.Thread, error) {
	var t model.Thread
	err := s.db.QueryRow(ctx, `
		SELECT thread_id, summary, generated_category, user_category, delivered_to
		FROM threads WHERE thread_id = $1
	`, threadID).Scan(&t.ThreadID, &t.Summary, &t.GeneratedCategory, &t.UserCategory, &t.DeliveredTo)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread %s: %w", threadID, err)
	}
	return &t, nil
}

// UpsertThread 单条语句完成插入或覆盖，避免读-改-写竞争
func (s *PostgresStore) UpsertThread(ctx context.Context, t model.Thread) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO threads (thread_id, summary, generated_category, user_category, delivered_to, created_at, updated_at)
		VALUES ($1, $2, $3, '', $4, NOW(), NOW())
		ON CONFLICT (thread_id) DO UPDATE
		SET summary = EXCLUDED.summary,
		    generated_category = EXCLUDED.generated_category,
		    user_category = '',
		    updated_at = NOW()
	`, t.ThreadID, t.Summary, t.GeneratedCategory, t.DeliveredTo)
	if err != nil {
		return fmt.Errorf("failed to upsert thread %s: %w", t.ThreadID, err)
	}
	return nil
}

// SetUserCategory records a human override for the thread.
func (s *PostgresStore) SetUserCategory(ctx context.Context, threadID, category string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE threads SET user_category = $2, updated_at = NOW() WHERE thread_id = $1
	`, threadID, category)
	if err != nil {
		return fmt.Errorf("failed to set user category on %s: %w", threadID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindAccount(ctx context.Context, email string) (*model.Account, error) {
	var (
		acc        model.Account
		expiry     *time.Time
		categories []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT email, access_token, refresh_token, token_expiry, categories
		FROM accounts WHERE email = $1
	`, email).Scan(&acc.Email, &acc.AccessToken, &acc.RefreshToken, &expiry, &categories)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", email, err)
	}
	if expiry != nil {
		acc.TokenExpiry = *expiry
	}
	if err := unmarshalJSON("categories", categories, &acc.Categories); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *PostgresStore) SaveAccount(ctx context.Context, acc *model.Account) error {
	categories, err := marshalJSON("categories", nonNilCategories(acc.Categories))
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO accounts (email, access_token, refresh_token, token_expiry, categories, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    token_expiry = EXCLUDED.token_expiry,
		    categories = EXCLUDED.categories,
		    updated_at = NOW()
	`, acc.Email, acc.AccessToken, acc.RefreshToken, nullTime(acc.TokenExpiry), categories)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", acc.Email, err)
	}
	return nil
}
