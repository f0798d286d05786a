package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"mail_server/core/domain"
	"mail_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// AttachmentAdapter implements out.AttachmentRepository using
// PostgreSQL.
type AttachmentAdapter struct {
	db *sqlx.DB
}

// NewAttachmentAdapter creates a new AttachmentAdapter.
func NewAttachmentAdapter(db *sqlx.DB) *AttachmentAdapter {
	return &AttachmentAdapter{db: db}
}

// attachmentRow represents the database row for attachments.
type attachmentRow struct {
	ID          int64     `db:"id"`
	MessageID   int64     `db:"message_id"`
	Filename    string    `db:"filename"`
	Path        string    `db:"path"`
	Size        int64     `db:"size"`
	ContentType string    `db:"content_type"`
	Inline      bool      `db:"inline"`
	CID         string    `db:"cid"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r *attachmentRow) toEntity() *domain.Attachment {
	return &domain.Attachment{
		ID:          r.ID,
		MessageID:   r.MessageID,
		Filename:    r.Filename,
		Path:        r.Path,
		Size:        r.Size,
		ContentType: r.ContentType,
		Inline:      r.Inline,
		CID:         r.CID,
		CreatedAt:   r.CreatedAt,
	}
}

// GetByID retrieves an attachment by its ID.
func (a *AttachmentAdapter) GetByID(id int64) (*domain.Attachment, error) {
	var row attachmentRow
	query := `SELECT * FROM attachments WHERE id = $1`

	if err := a.db.Get(&row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return row.toEntity(), nil
}

// ListByMessage retrieves the attachments of a message.
func (a *AttachmentAdapter) ListByMessage(messageID int64) ([]*domain.Attachment, error) {
	var rows []attachmentRow
	query := `SELECT * FROM attachments WHERE message_id = $1 ORDER BY id`

	if err := a.db.Select(&rows, query, messageID); err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}

	attachments := make([]*domain.Attachment, len(rows))
	for i, row := range rows {
		attachments[i] = row.toEntity()
	}
	return attachments, nil
}

// ListByIDs retrieves attachments by id, skipping missing ones.
func (a *AttachmentAdapter) ListByIDs(ids []int64) ([]*domain.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM attachments WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build attachment query: %w", err)
	}

	var rows []attachmentRow
	if err := a.db.Select(&rows, a.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}

	attachments := make([]*domain.Attachment, len(rows))
	for i, row := range rows {
		attachments[i] = row.toEntity()
	}
	return attachments, nil
}

// Create inserts an attachment row.
func (a *AttachmentAdapter) Create(attachment *domain.Attachment) error {
	query := `
		INSERT INTO attachments (message_id, filename, path, size, content_type, inline, cid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id`

	err := a.db.Get(&attachment.ID, query,
		attachment.MessageID,
		attachment.Filename,
		attachment.Path,
		attachment.Size,
		attachment.ContentType,
		attachment.Inline,
		attachment.CID,
	)
	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

// CountByMessage returns how many attachments a message carries.
func (a *AttachmentAdapter) CountByMessage(messageID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM attachments WHERE message_id = $1`

	if err := a.db.Get(&count, query, messageID); err != nil {
		return 0, fmt.Errorf("failed to count attachments: %w", err)
	}
	return count, nil
}

// Ensure AttachmentAdapter implements out.AttachmentRepository
var _ out.AttachmentRepository = (*AttachmentAdapter)(nil)
