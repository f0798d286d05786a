package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"mail_server/core/domain"
	"mail_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// MessageAdapter implements out.MessageRepository using PostgreSQL. It
// also owns the message-label, header and recipient association
// tables.
type MessageAdapter struct {
	db *sqlx.DB
}

// NewMessageAdapter creates a new MessageAdapter.
func NewMessageAdapter(db *sqlx.DB) *MessageAdapter {
	return &MessageAdapter{db: db}
}

// messageRow represents the database row for messages.
type messageRow struct {
	ID            int64         `db:"id"`
	AccountID     int64         `db:"account_id"`
	MessageID     string        `db:"message_id"`
	ThreadID      string        `db:"thread_id"`
	SenderID      sql.NullInt64 `db:"sender_id"`
	Subject       string        `db:"subject"`
	Snippet       string        `db:"snippet"`
	SentDate      time.Time     `db:"sent_date"`
	HasAttachment bool          `db:"has_attachment"`
	IsDownloaded  bool          `db:"is_downloaded"`
	Read          bool          `db:"read"`
	DraftID       string        `db:"draft_id"`
	IsDeleted     bool          `db:"is_deleted"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
	DeletedAt     sql.NullTime  `db:"deleted_at"`
}

func (r *messageRow) toEntity() *domain.Message {
	msg := &domain.Message{
		ID:            r.ID,
		AccountID:     r.AccountID,
		MessageID:     r.MessageID,
		ThreadID:      r.ThreadID,
		Subject:       r.Subject,
		Snippet:       r.Snippet,
		SentDate:      r.SentDate,
		HasAttachment: r.HasAttachment,
		IsDownloaded:  r.IsDownloaded,
		Read:          r.Read,
		DraftID:       r.DraftID,
		IsDeleted:     r.IsDeleted,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.SenderID.Valid {
		senderID := r.SenderID.Int64
		msg.SenderID = &senderID
	}
	if r.DeletedAt.Valid {
		deletedAt := r.DeletedAt.Time
		msg.DeletedAt = &deletedAt
	}
	return msg
}

// GetByID retrieves a message by its local ID.
func (a *MessageAdapter) GetByID(id int64) (*domain.Message, error) {
	var row messageRow
	query := `SELECT * FROM messages WHERE id = $1`

	if err := a.db.Get(&row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return row.toEntity(), nil
}

// GetByRemoteID retrieves a message by (account, remote id).
func (a *MessageAdapter) GetByRemoteID(accountID int64, messageID string) (*domain.Message, error) {
	var row messageRow
	query := `SELECT * FROM messages WHERE account_id = $1 AND message_id = $2`

	if err := a.db.Get(&row, query, accountID, messageID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return row.toEntity(), nil
}

// GetOrCreate resolves a message row by (account, remote id), creating
// a stub with the given sent date when absent.
func (a *MessageAdapter) GetOrCreate(accountID int64, messageID string, sentDate time.Time) (*domain.Message, error) {
	var row messageRow
	query := `
		INSERT INTO messages (account_id, message_id, sent_date, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (account_id, message_id) DO UPDATE SET updated_at = NOW()
		RETURNING *`

	if err := a.db.Get(&row, query, accountID, messageID, sentDate); err != nil {
		return nil, fmt.Errorf("failed to get or create message: %w", err)
	}
	return row.toEntity(), nil
}

// ListDownloadedIDs returns the remote ids already fully downloaded.
func (a *MessageAdapter) ListDownloadedIDs(accountID int64) (map[string]struct{}, error) {
	var ids []string
	query := `SELECT message_id FROM messages WHERE account_id = $1 AND is_downloaded = true`

	if err := a.db.Select(&ids, query, accountID); err != nil {
		return nil, fmt.Errorf("failed to list downloaded messages: %w", err)
	}

	downloaded := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		downloaded[id] = struct{}{}
	}
	return downloaded, nil
}

// CountUndownloaded returns how many rows still await a full fetch.
func (a *MessageAdapter) CountUndownloaded(accountID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM messages WHERE account_id = $1 AND is_downloaded = false`

	if err := a.db.Get(&count, query, accountID); err != nil {
		return 0, fmt.Errorf("failed to count undownloaded messages: %w", err)
	}
	return count, nil
}

// Update persists the mutable message columns.
func (a *MessageAdapter) Update(message *domain.Message) error {
	query := `
		UPDATE messages
		SET thread_id = $2,
			sender_id = $3,
			subject = $4,
			snippet = $5,
			sent_date = $6,
			has_attachment = $7,
			is_downloaded = $8,
			read = $9,
			draft_id = $10,
			updated_at = NOW()
		WHERE id = $1`

	var senderID sql.NullInt64
	if message.SenderID != nil {
		senderID = sql.NullInt64{Int64: *message.SenderID, Valid: true}
	}

	_, err := a.db.Exec(query,
		message.ID,
		message.ThreadID,
		senderID,
		message.Subject,
		message.Snippet,
		message.SentDate,
		message.HasAttachment,
		message.IsDownloaded,
		message.Read,
		message.DraftID,
	)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

// SetRead flips the read flag.
func (a *MessageAdapter) SetRead(id int64, read bool) error {
	query := `UPDATE messages SET read = $2, updated_at = NOW() WHERE id = $1`
	if _, err := a.db.Exec(query, id, read); err != nil {
		return fmt.Errorf("failed to set read flag: %w", err)
	}
	return nil
}

// DeleteByRemoteID removes a message row; associations cascade.
func (a *MessageAdapter) DeleteByRemoteID(accountID int64, messageID string) error {
	query := `DELETE FROM messages WHERE account_id = $1 AND message_id = $2`
	if _, err := a.db.Exec(query, accountID, messageID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// ClearLabels drops every label association of a message.
func (a *MessageAdapter) ClearLabels(messageID int64) error {
	if _, err := a.db.Exec(`DELETE FROM message_labels WHERE message_id = $1`, messageID); err != nil {
		return fmt.Errorf("failed to clear labels: %w", err)
	}
	return nil
}

// AttachLabel links a label to a message, ignoring duplicates.
func (a *MessageAdapter) AttachLabel(messageID, labelID int64) error {
	query := `
		INSERT INTO message_labels (message_id, label_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	if _, err := a.db.Exec(query, messageID, labelID); err != nil {
		return fmt.Errorf("failed to attach label: %w", err)
	}
	return nil
}

// DetachLabel unlinks a label from a message.
func (a *MessageAdapter) DetachLabel(messageID, labelID int64) error {
	query := `DELETE FROM message_labels WHERE message_id = $1 AND label_id = $2`
	if _, err := a.db.Exec(query, messageID, labelID); err != nil {
		return fmt.Errorf("failed to detach label: %w", err)
	}
	return nil
}

// GetLabels returns the labels attached to a message.
func (a *MessageAdapter) GetLabels(messageID int64) ([]*domain.Label, error) {
	var rows []labelRow
	query := `
		SELECT l.* FROM labels l
		JOIN message_labels ml ON ml.label_id = l.id
		WHERE ml.message_id = $1
		ORDER BY l.id`

	if err := a.db.Select(&rows, query, messageID); err != nil {
		return nil, fmt.Errorf("failed to get message labels: %w", err)
	}

	labels := make([]*domain.Label, len(rows))
	for i, row := range rows {
		labels[i] = row.toEntity()
	}
	return labels, nil
}

// AddHeader stores a header row, deduplicated by (message, name, value
// hash).
func (a *MessageAdapter) AddHeader(header *domain.Header) error {
	query := `
		INSERT INTO headers (message_id, name, value, value_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, name, value_hash) DO NOTHING`

	if _, err := a.db.Exec(query, header.MessageID, header.Name, header.Value, header.ValueHash); err != nil {
		return fmt.Errorf("failed to add header: %w", err)
	}
	return nil
}

// recipientRow represents the database row for recipients.
type recipientRow struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	EmailAddress string `db:"email_address"`
}

func (r *recipientRow) toEntity() *domain.Recipient {
	return &domain.Recipient{
		ID:           r.ID,
		Name:         r.Name,
		EmailAddress: r.EmailAddress,
	}
}

// GetOrCreateRecipient resolves the shared (name, email) row.
func (a *MessageAdapter) GetOrCreateRecipient(name, email string) (*domain.Recipient, error) {
	var row recipientRow
	query := `
		INSERT INTO recipients (name, email_address)
		VALUES ($1, $2)
		ON CONFLICT (name, email_address) DO UPDATE SET name = EXCLUDED.name
		RETURNING *`

	if err := a.db.Get(&row, query, name, email); err != nil {
		return nil, fmt.Errorf("failed to get or create recipient: %w", err)
	}
	return row.toEntity(), nil
}

// LinkRecipient attaches a recipient to a message in the given role,
// ignoring duplicates.
func (a *MessageAdapter) LinkRecipient(messageID, recipientID int64, kind domain.RecipientKind) error {
	query := `
		INSERT INTO message_recipients (message_id, recipient_id, kind)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`

	if _, err := a.db.Exec(query, messageID, recipientID, string(kind)); err != nil {
		return fmt.Errorf("failed to link recipient: %w", err)
	}
	return nil
}

// SetSender overwrites the message's sender.
func (a *MessageAdapter) SetSender(messageID, recipientID int64) error {
	query := `UPDATE messages SET sender_id = $2, updated_at = NOW() WHERE id = $1`
	if _, err := a.db.Exec(query, messageID, recipientID); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	return nil
}

// Ensure MessageAdapter implements out.MessageRepository
var _ out.MessageRepository = (*MessageAdapter)(nil)
