package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"mail_server/core/domain"
	"mail_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// OutboxAdapter implements out.OutboxRepository using PostgreSQL.
type OutboxAdapter struct {
	db *sqlx.DB
}

// NewOutboxAdapter creates a new OutboxAdapter.
func NewOutboxAdapter(db *sqlx.DB) *OutboxAdapter {
	return &OutboxAdapter{db: db}
}

// outboxRow represents the database row for outbox messages.
type outboxRow struct {
	ID                    int64         `db:"id"`
	AccountID             int64         `db:"account_id"`
	To                    string        `db:"to_addresses"`
	Cc                    string        `db:"cc_addresses"`
	Bcc                   string        `db:"bcc_addresses"`
	Subject               string        `db:"subject"`
	Body                  string        `db:"body"`
	Headers               string        `db:"headers"`
	MappedAttachments     int           `db:"mapped_attachments"`
	OriginalAttachmentIDs string        `db:"original_attachment_ids"`
	TemplateAttachmentIDs string        `db:"template_attachment_ids"`
	OriginalMessageID     sql.NullInt64 `db:"original_message_id"`
	CreatedAt             time.Time     `db:"created_at"`
}

func (r *outboxRow) toEntity() *domain.OutboxMessage {
	ob := &domain.OutboxMessage{
		ID:                    r.ID,
		AccountID:             r.AccountID,
		To:                    r.To,
		Cc:                    r.Cc,
		Bcc:                   r.Bcc,
		Subject:               r.Subject,
		Body:                  r.Body,
		Headers:               r.Headers,
		MappedAttachments:     r.MappedAttachments,
		OriginalAttachmentIDs: r.OriginalAttachmentIDs,
		TemplateAttachmentIDs: r.TemplateAttachmentIDs,
		CreatedAt:             r.CreatedAt,
	}
	if r.OriginalMessageID.Valid {
		originalID := r.OriginalMessageID.Int64
		ob.OriginalMessageID = &originalID
	}
	return ob
}

// GetByID retrieves an outbox message by its ID.
func (a *OutboxAdapter) GetByID(id int64) (*domain.OutboxMessage, error) {
	var row outboxRow
	query := `SELECT * FROM outbox_messages WHERE id = $1`

	if err := a.db.Get(&row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get outbox message: %w", err)
	}
	return row.toEntity(), nil
}

// Create inserts an outbox message.
func (a *OutboxAdapter) Create(outbox *domain.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages
			(account_id, to_addresses, cc_addresses, bcc_addresses, subject, body, headers,
			 mapped_attachments, original_attachment_ids, template_attachment_ids, original_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING id`

	var originalID sql.NullInt64
	if outbox.OriginalMessageID != nil {
		originalID = sql.NullInt64{Int64: *outbox.OriginalMessageID, Valid: true}
	}

	err := a.db.Get(&outbox.ID, query,
		outbox.AccountID,
		outbox.To,
		outbox.Cc,
		outbox.Bcc,
		outbox.Subject,
		outbox.Body,
		outbox.Headers,
		outbox.MappedAttachments,
		outbox.OriginalAttachmentIDs,
		outbox.TemplateAttachmentIDs,
		originalID,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	return nil
}

// Delete removes a sent outbox message; staged attachments cascade.
func (a *OutboxAdapter) Delete(id int64) error {
	if _, err := a.db.Exec(`DELETE FROM outbox_messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete outbox message: %w", err)
	}
	return nil
}

// outboxAttachmentRow represents the database row for staged
// attachments.
type outboxAttachmentRow struct {
	ID          int64  `db:"id"`
	OutboxID    int64  `db:"outbox_id"`
	Filename    string `db:"filename"`
	Path        string `db:"path"`
	Size        int64  `db:"size"`
	ContentType string `db:"content_type"`
	Inline      bool   `db:"inline"`
	CID         string `db:"cid"`
}

func (r *outboxAttachmentRow) toEntity() *domain.OutboxAttachment {
	return &domain.OutboxAttachment{
		ID:          r.ID,
		OutboxID:    r.OutboxID,
		Filename:    r.Filename,
		Path:        r.Path,
		Size:        r.Size,
		ContentType: r.ContentType,
		Inline:      r.Inline,
		CID:         r.CID,
	}
}

// ListAttachments retrieves the staged attachments of an outbox
// message.
func (a *OutboxAdapter) ListAttachments(outboxID int64) ([]*domain.OutboxAttachment, error) {
	var rows []outboxAttachmentRow
	query := `SELECT * FROM outbox_attachments WHERE outbox_id = $1 ORDER BY id`

	if err := a.db.Select(&rows, query, outboxID); err != nil {
		return nil, fmt.Errorf("failed to list outbox attachments: %w", err)
	}

	attachments := make([]*domain.OutboxAttachment, len(rows))
	for i, row := range rows {
		attachments[i] = row.toEntity()
	}
	return attachments, nil
}

// CreateAttachment inserts a staged attachment row.
func (a *OutboxAdapter) CreateAttachment(attachment *domain.OutboxAttachment) error {
	query := `
		INSERT INTO outbox_attachments (outbox_id, filename, path, size, content_type, inline, cid)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := a.db.Get(&attachment.ID, query,
		attachment.OutboxID,
		attachment.Filename,
		attachment.Path,
		attachment.Size,
		attachment.ContentType,
		attachment.Inline,
		attachment.CID,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox attachment: %w", err)
	}
	return nil
}

// templateRow represents the database row for compose templates.
type templateRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Subject   string    `db:"subject"`
	Body      string    `db:"body"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *templateRow) toEntity() *domain.Template {
	return &domain.Template{
		ID:        r.ID,
		Name:      r.Name,
		Subject:   r.Subject,
		Body:      r.Body,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// GetTemplate retrieves a compose template by its ID.
func (a *OutboxAdapter) GetTemplate(id int64) (*domain.Template, error) {
	var row templateRow
	query := `SELECT * FROM templates WHERE id = $1`

	if err := a.db.Get(&row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return row.toEntity(), nil
}

// templateAttachmentRow represents the database row for template
// attachments.
type templateAttachmentRow struct {
	ID          int64  `db:"id"`
	TemplateID  int64  `db:"template_id"`
	Filename    string `db:"filename"`
	Path        string `db:"path"`
	Size        int64  `db:"size"`
	ContentType string `db:"content_type"`
	Inline      bool   `db:"inline"`
	CID         string `db:"cid"`
}

func (r *templateAttachmentRow) toEntity() *domain.TemplateAttachment {
	return &domain.TemplateAttachment{
		ID:          r.ID,
		TemplateID:  r.TemplateID,
		Filename:    r.Filename,
		Path:        r.Path,
		Size:        r.Size,
		ContentType: r.ContentType,
		Inline:      r.Inline,
		CID:         r.CID,
	}
}

// ListTemplateAttachments retrieves template attachments by id.
func (a *OutboxAdapter) ListTemplateAttachments(ids []int64) ([]*domain.TemplateAttachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM template_attachments WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build template attachment query: %w", err)
	}

	var rows []templateAttachmentRow
	if err := a.db.Select(&rows, a.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list template attachments: %w", err)
	}

	attachments := make([]*domain.TemplateAttachment, len(rows))
	for i, row := range rows {
		attachments[i] = row.toEntity()
	}
	return attachments, nil
}

// Ensure OutboxAdapter implements out.OutboxRepository
var _ out.OutboxRepository = (*OutboxAdapter)(nil)
