package domain

import "time"

// OutboxMessage is a user-composed message queued for sending. The row
// is deleted once the send succeeded. To/Cc/Bcc hold JSON-encoded
// address arrays as written by the compose form.
type OutboxMessage struct {
	ID                    int64     `json:"id"`
	AccountID             int64     `json:"account_id"`
	To                    string    `json:"to"`
	Cc                    string    `json:"cc"`
	Bcc                   string    `json:"bcc"`
	Subject               string    `json:"subject"`
	Body                  string    `json:"body"`
	Headers               string    `json:"headers"`
	MappedAttachments     int       `json:"mapped_attachments"`
	OriginalAttachmentIDs string    `json:"original_attachment_ids"`
	TemplateAttachmentIDs string    `json:"template_attachment_ids"`
	OriginalMessageID     *int64    `json:"original_message_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// OutboxAttachment is an attachment staged for an outbox message.
type OutboxAttachment struct {
	ID          int64  `json:"id"`
	OutboxID    int64  `json:"outbox_id"`
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Inline      bool   `json:"inline"`
	CID         string `json:"cid,omitempty"`
}

// Template is a reusable compose template with its own attachments.
type Template struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplateAttachment is an attachment belonging to a Template; sends
// that use the template copy it into the outbox.
type TemplateAttachment struct {
	ID          int64  `json:"id"`
	TemplateID  int64  `json:"template_id"`
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Inline      bool   `json:"inline"`
	CID         string `json:"cid,omitempty"`
}
