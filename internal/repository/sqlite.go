package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"mailsense/internal/model"
)

// SQLiteStore 本地开发与测试用的存储，不写 outbox
type SQLiteStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path, enables WAL and
// applies pending migrations.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// 单连接串行化写入，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) runMigrations() error {
	current := 0

	var tables int
	if err := s.db.Get(&tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	); err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range sqliteMigrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		s.logger.Info("Applied sqlite migration", zap.Int("version", m.version))
	}
	return nil
}

func (s *SQLiteStore) MessageExists(ctx context.Context, messageID string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM messages WHERE message_id = ?", messageID,
	); err != nil {
		return false, fmt.Errorf("checking message %s: %w", messageID, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) FindMessage(ctx context.Context, messageID string) (*model.Message, error) {
	var (
		m           model.Message
		sentAt      sql.NullTime
		labels      string
		attachments string
		deliveredTo sql.NullString
		cc          sql.NullString
		bcc         sql.NullString
	)
	err := s.db.QueryRowxContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE message_id = ?`, messageID,
	).Scan(
		&m.MessageID, &m.ThreadID, &m.Subject, &m.From, &m.To, &sentAt, &m.Snippet, &labels,
		&m.BodyText, &m.BodyHTML, &attachments, &m.GeneratedCategory, &m.UserCategory, &m.Summary, &m.AIOutputText,
		&deliveredTo, &cc, &bcc, &m.DraftID, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", messageID, err)
	}

	if sentAt.Valid {
		t := sentAt.Time.UTC()
		m.Date = &t
	}
	m.DeliveredTo = nullStringPtr(deliveredTo)
	m.Cc = nullStringPtr(cc)
	m.Bcc = nullStringPtr(bcc)
	if err := unmarshalJSON("label_ids", []byte(labels), &m.LabelIDs); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("attachments", []byte(attachments), &m.Attachments); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, m *model.Message) error {
	stampMessage(m)
	labels, err := marshalJSON("label_ids", m.LabelIDs)
	if err != nil {
		return err
	}
	attachments, err := marshalJSON("attachments", m.Attachments)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING`,
		m.MessageID, m.ThreadID, m.Subject, m.From, m.To, nullTimeValue(m.Date), m.Snippet, string(labels),
		m.BodyText, m.BodyHTML, string(attachments), m.GeneratedCategory, m.UserCategory, m.Summary, m.AIOutputText,
		m.DeliveredTo, m.Cc, m.Bcc, m.DraftID, m.CreatedAt.UTC(), m.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting message %s: %w", m.MessageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting message %s: %w", m.MessageID, err)
	}
	if n == 0 {
		return ErrDuplicateMessage
	}
	return nil
}

func (s *SQLiteStore) FindThread(ctx context.Context, threadID string) (*model.Thread, error) {
	var (
		t           model.Thread
		deliveredTo sql.NullString
	)
	err := s.db.QueryRowxContext(ctx, `
		SELECT thread_id, summary, generated_category, user_category, delivered_to
		FROM threads WHERE thread_id = ?`, threadID,
	).Scan(&t.ThreadID, &t.Summary, &t.GeneratedCategory, &t.UserCategory, &deliveredTo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting thread %s: %w", threadID, err)
	}
	t.DeliveredTo = nullStringPtr(deliveredTo)
	return &t, nil
}

func (s *SQLiteStore) UpsertThread(ctx context.Context, t model.Thread) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (thread_id, summary, generated_category, user_category, delivered_to, created_at, updated_at)
		VALUES (?, ?, ?, '', ?, ?, ?)
		ON CONFLICT (thread_id) DO UPDATE
		SET summary = excluded.summary,
		    generated_category = excluded.generated_category,
		    user_category = '',
		    updated_at = excluded.updated_at`,
		t.ThreadID, t.Summary, t.GeneratedCategory, t.DeliveredTo, now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting thread %s: %w", t.ThreadID, err)
	}
	return nil
}

func (s *SQLiteStore) SetUserCategory(ctx context.Context, threadID, category string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE threads SET user_category = ?, updated_at = ? WHERE thread_id = ?",
		category, time.Now().UTC(), threadID,
	)
	if err != nil {
		return fmt.Errorf("setting user category on %s: %w", threadID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) FindAccount(ctx context.Context, email string) (*model.Account, error) {
	var (
		acc        model.Account
		expiry     sql.NullTime
		categories string
	)
	err := s.db.QueryRowxContext(ctx, `
		SELECT email, access_token, refresh_token, token_expiry, categories
		FROM accounts WHERE email = ?`, email,
	).Scan(&acc.Email, &acc.AccessToken, &acc.RefreshToken, &expiry, &categories)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting account %s: %w", email, err)
	}
	if expiry.Valid {
		acc.TokenExpiry = expiry.Time.UTC()
	}
	if err := unmarshalJSON("categories", []byte(categories), &acc.Categories); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *SQLiteStore) SaveAccount(ctx context.Context, acc *model.Account) error {
	categories, err := marshalJSON("categories", nonNilCategories(acc.Categories))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (email, access_token, refresh_token, token_expiry, categories, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE
		SET access_token = excluded.access_token,
		    refresh_token = excluded.refresh_token,
		    token_expiry = excluded.token_expiry,
		    categories = excluded.categories,
		    updated_at = excluded.updated_at`,
		acc.Email, acc.AccessToken, acc.RefreshToken, nullTimeValue(nullTime(acc.TokenExpiry)), string(categories), now, now,
	)
	if err != nil {
		return fmt.Errorf("saving account %s: %w", acc.Email, err)
	}
	return nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// nullTimeValue 传 nil 接口值给驱动，写入 NULL
func nullTimeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
