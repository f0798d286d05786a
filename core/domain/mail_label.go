package domain

import "time"

// LabelType distinguishes Gmail system labels from user-created ones.
type LabelType int

const (
	LabelTypeSystem LabelType = 0
	LabelTypeUser   LabelType = 1
)

// ParseLabelType maps the remote "type" field to a LabelType.
func ParseLabelType(remote string) LabelType {
	if remote == "system" {
		return LabelTypeSystem
	}
	return LabelTypeUser
}

// Label is a Gmail label scoped to an account. (account_id, label_id)
// is unique. The unread label id is never stored as a Label row; it is
// folded into Message.Read instead.
type Label struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	LabelID   string    `json:"label_id"`
	Name      string    `json:"name"`
	Type      LabelType `json:"label_type"`
	Unread    int       `json:"unread"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
