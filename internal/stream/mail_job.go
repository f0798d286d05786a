package stream

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"google.golang.org/api/gmail/v1"
)

// JobType represents the type of a job.
type JobType = string

// Job types
const (
	JobSyncAccount     JobType = "sync.account"
	JobSyncAllMessages         = "sync.all_messages"
	JobSyncLabels              = "sync.labels"
	JobFinishSync              = "sync.finish"
	JobSyncMessage             = "sync.message"
	JobSyncHistoryItem         = "sync.history_item"

	JobToggleRead = "mail.toggle_read"
	JobArchive    = "mail.archive"
	JobTrash      = "mail.trash"
	JobDelete     = "mail.delete"
	JobSend       = "mail.send"
)

// Job is the wire envelope published to a stream.
type Job struct {
	ID        string         `json:"id"`
	Type      JobType        `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
	Retries   int            `json:"retries"`
}

func NewJob(jobType JobType, payload map[string]any) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		CreatedAt: time.Now(),
		Retries:   0,
	}
}

// ParsePayload decodes the loose payload map into a typed struct.
func ParsePayload[T any](job *Job) (*T, error) {
	var payload T
	data, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Payloads

type SyncAccountPayload struct {
	AccountID int64 `json:"account_id"`
}

type SyncMessagePayload struct {
	AccountID int64  `json:"account_id"`
	MessageID string `json:"message_id"`
	FirstSync bool   `json:"first_sync"`
}

type HistoryItemPayload struct {
	AccountID int64          `json:"account_id"`
	Item      *gmail.History `json:"item"`
}

type ToggleReadPayload struct {
	MessageID int64 `json:"message_id"`
	Read      bool  `json:"read"`
}

type MessageActionPayload struct {
	MessageID int64 `json:"message_id"`
}

type SendPayload struct {
	OutboxID int64 `json:"outbox_id"`
}
