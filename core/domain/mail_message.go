package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// Message is one Gmail message in the local replica. (account_id,
// message_id) is unique. A row may exist with IsDownloaded=false before
// the full payload has been parsed.
type Message struct {
	ID            int64      `json:"id"`
	AccountID     int64      `json:"account_id"`
	MessageID     string     `json:"message_id"`
	ThreadID      string     `json:"thread_id"`
	SenderID      *int64     `json:"sender_id,omitempty"`
	Subject       string     `json:"subject"`
	Snippet       string     `json:"snippet"`
	SentDate      time.Time  `json:"sent_date"`
	HasAttachment bool       `json:"has_attachment"`
	IsDownloaded  bool       `json:"is_downloaded"`
	Read          bool       `json:"read"`
	DraftID       string     `json:"draft_id,omitempty"`
	IsDeleted     bool       `json:"is_deleted"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// MessageBody carries the decoded text/html bodies, stored in the body
// document store rather than the relational replica.
type MessageBody struct {
	AccountID int64  `json:"account_id" bson:"account_id"`
	MessageID string `json:"message_id" bson:"message_id"`
	BodyHTML  string `json:"body_html" bson:"body_html"`
	BodyText  string `json:"body_text" bson:"body_text"`
}

// Recipient is a (name, email) pair shared across messages; the pair is
// unique.
type Recipient struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	EmailAddress string `json:"email_address"`
}

// RecipientKind says how a recipient relates to a message.
type RecipientKind string

const (
	RecipientSender     RecipientKind = "sender"
	RecipientReceivedBy RecipientKind = "received_by"
	RecipientCc         RecipientKind = "received_by_cc"
)

// Header is one stored message header. Deduplicated per message by
// (name, hash of value).
type Header struct {
	ID        int64  `json:"id"`
	MessageID int64  `json:"message_id"`
	Name      string `json:"name"`
	Value     string `json:"value"`
	ValueHash string `json:"value_hash"`
}

// HashHeaderValue returns the stable 40-char hex digest used to
// deduplicate header values.
func HashHeaderValue(value string) string {
	sum := sha1.Sum([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Attachment metadata; the bytes live in the blob store under Path.
type Attachment struct {
	ID          int64     `json:"id"`
	MessageID   int64     `json:"message_id"`
	Filename    string    `json:"filename"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Inline      bool      `json:"inline"`
	CID         string    `json:"cid,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
